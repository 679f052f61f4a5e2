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

package synch

import (
	"github.com/kthreads/kthreads/pkg/ilist"
	"github.com/kthreads/kthreads/pkg/kernel"
)

// condWaiter is one thread waiting on a Condition.
type condWaiter struct {
	// sema is private to the waiter and starts at 0.
	sema Semaphore

	// tid is the waiting thread. It is recorded before the thread blocks
	// on sema, so that a signal arriving in between still ranks it.
	tid kernel.TID
}

// Condition is a Mesa-style condition variable: signaling only makes a waiter
// runnable, so by the time Wait returns the condition may no longer hold and
// callers must recheck it in a loop.
//
// A Condition is associated with the Lock passed to its methods; every call
// must be made with the same Lock held.
type Condition struct {
	waiters ilist.List[*condWaiter]
}

// Init initializes c with no waiters.
func (c *Condition) Init() {
	c.waiters.Reset()
}

// Wait atomically releases l and waits for c to be signaled, then reacquires
// l before returning.
//
// Preconditions: not in interrupt context; l is held by the current thread.
func (c *Condition) Wait(l *Lock) {
	k := mustHold(l, "Wait")
	if k.CPU().InContext() {
		panic("synch: Condition.Wait in interrupt context")
	}

	w := &condWaiter{tid: k.Current().TID()}
	w.sema.Init(k, 0)
	cpu := k.CPU()
	old := cpu.Disable()
	c.waiters.PushBack(w)
	cpu.SetLevel(old)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal wakes the highest-priority thread waiting on c, if any.
//
// Preconditions: l is held by the current thread.
func (c *Condition) Signal(l *Lock) {
	k := mustHold(l, "Signal")

	cpu := k.CPU()
	old := cpu.Disable()
	e := c.waiters.Max(func(a, b *condWaiter) bool {
		return k.Thread(a.tid).Priority() < k.Thread(b.tid).Priority()
	})
	if e != nil {
		c.waiters.Remove(e)
	}
	cpu.SetLevel(old)

	if e != nil {
		e.Value.sema.Up()
	}
}

// Broadcast wakes every thread waiting on c, highest priority first.
//
// Preconditions: l is held by the current thread.
func (c *Condition) Broadcast(l *Lock) {
	mustHold(l, "Broadcast")
	for c.Len() > 0 {
		c.Signal(l)
	}
}

// Len returns the number of threads waiting on c.
func (c *Condition) Len() int {
	return c.waiters.Len()
}

// mustHold panics unless l is held by the current thread, and returns l's
// kernel.
func mustHold(l *Lock, op string) *kernel.Kernel {
	if l == nil {
		panic("synch: Condition." + op + " with nil lock")
	}
	if !l.HeldByCurrent() {
		panic("synch: Condition." + op + " without holding the lock")
	}
	return l.sema.k
}
