// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package synch provides the blocking synchronization primitives of the
// kernel: counting semaphores, locks with priority donation, and Mesa-style
// condition variables.
//
// None of the primitives has a lock of its own. All of their state, and the
// donation state they maintain on kernel threads, is mutated only inside an
// atomic section of the kernel's CPU (interrupts disabled).
//
// Wake-ups always go to the waiter with the highest effective priority.
// Among equal priorities the thread that started waiting first wins.
package synch

import (
	"fmt"

	"github.com/kthreads/kthreads/pkg/ilist"
	"github.com/kthreads/kthreads/pkg/kernel"
)

// Semaphore is a counting semaphore.
//
// The zero value is not usable; call Init first.
type Semaphore struct {
	k     *kernel.Kernel
	value uint

	// waiters are the threads blocked in Down, in arrival order.
	waiters ilist.List[kernel.TID]

	// onBlock, if set, is called with interrupts disabled each time the
	// current thread is about to block in Down, before donation.
	onBlock func(cur *kernel.Thread)
}

// Init initializes s with the given value.
func (s *Semaphore) Init(k *kernel.Kernel, value uint) {
	if k == nil {
		panic("synch: Semaphore.Init with nil kernel")
	}
	s.k = k
	s.value = value
	s.waiters.Reset()
	s.onBlock = nil
}

func (s *Semaphore) kernel() *kernel.Kernel {
	if s.k == nil {
		panic("synch: uninitialized semaphore")
	}
	return s.k
}

// Down waits for the value of s to become positive and then decrements it.
//
// Preconditions: not in interrupt context.
func (s *Semaphore) Down() {
	k := s.kernel()
	cpu := k.CPU()
	if cpu.InContext() {
		panic("synch: Semaphore.Down in interrupt context")
	}

	old := cpu.Disable()
	for s.value == 0 {
		cur := k.Current()
		if s.onBlock != nil {
			s.onBlock(cur)
		}
		k.DonatePriority()
		s.waiters.PushBack(cur.TID())
		k.Block()
	}
	s.value--
	cpu.SetLevel(old)
}

// TryDown decrements s if its value is positive and reports whether it did.
// A failed attempt still donates the current thread's priority along its
// blocker chain. TryDown never blocks and may be called from an interrupt
// handler.
func (s *Semaphore) TryDown() bool {
	k := s.kernel()
	cpu := k.CPU()

	old := cpu.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	} else {
		k.DonatePriority()
	}
	cpu.SetLevel(old)
	return ok
}

// Up increments s and wakes the highest-priority waiter, if any. If the woken
// thread outranks the current thread, the current thread yields; inside an
// interrupt handler it yields when the handler returns.
func (s *Semaphore) Up() {
	k := s.kernel()
	cpu := k.CPU()

	old := cpu.Disable()
	preempt := false
	if e := s.waiters.Max(s.lowerPriority); e != nil {
		s.waiters.Remove(e)
		t := k.Thread(e.Value)
		k.Unblock(t)
		preempt = t.Priority() > k.Current().Priority()
	}
	s.value++
	cpu.SetLevel(old)

	if preempt {
		k.Reschedule()
	}
}

// lowerPriority reports whether waiter a has a lower effective priority than
// waiter b.
func (s *Semaphore) lowerPriority(a, b kernel.TID) bool {
	return s.k.Thread(a).Priority() < s.k.Thread(b).Priority()
}

// Value returns the current value of s.
func (s *Semaphore) Value() uint {
	cpu := s.kernel().CPU()
	old := cpu.Disable()
	defer cpu.SetLevel(old)
	return s.value
}

// Waiters returns the number of threads blocked on s.
func (s *Semaphore) Waiters() int {
	cpu := s.kernel().CPU()
	old := cpu.Disable()
	defer cpu.SetLevel(old)
	return s.waiters.Len()
}

// waiting returns the threads blocked on s in arrival order.
//
// Preconditions: interrupts are disabled.
func (s *Semaphore) waiting() []*kernel.Thread {
	ts := make([]*kernel.Thread, 0, s.waiters.Len())
	for e := s.waiters.Front(); e != nil; e = e.Next() {
		ts = append(ts, s.k.Thread(e.Value))
	}
	return ts
}

// String implements fmt.Stringer.String.
func (s *Semaphore) String() string {
	return fmt.Sprintf("sema(value=%d waiters=%d)", s.value, s.waiters.Len())
}
