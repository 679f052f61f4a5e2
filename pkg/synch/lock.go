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
	"fmt"

	"github.com/kthreads/kthreads/pkg/kernel"
)

// Lock is a mutual exclusion lock with priority donation. A thread that blocks
// acquiring a Lock lends its effective priority to the holder, and to whatever
// that holder is itself waiting on, until the holder releases it.
//
// Locks are not recursive. Unlike a Semaphore with value 1, a Lock has an
// owner: only the thread that acquired it may release it.
//
// The zero value is not usable; call Init first.
type Lock struct {
	holder kernel.TID
	sema   Semaphore
}

// Init initializes l as unheld.
func (l *Lock) Init(k *kernel.Kernel) {
	l.holder = 0
	l.sema.Init(k, 1)
	l.sema.onBlock = l.block
}

// Holder returns the thread holding l, or nil. It implements kernel.Blocker.
func (l *Lock) Holder() *kernel.Thread {
	return l.sema.kernel().Thread(l.holder)
}

// HeldByCurrent returns true if the current thread holds l.
func (l *Lock) HeldByCurrent() bool {
	cur := l.sema.kernel().Current()
	return l.holder != 0 && cur != nil && l.holder == cur.TID()
}

// Acquire acquires l, blocking until it is available.
//
// Preconditions: not in interrupt context; l is not held by the current
// thread.
func (l *Lock) Acquire() {
	k := l.sema.kernel()
	if k.CPU().InContext() {
		panic("synch: Lock.Acquire in interrupt context")
	}
	if l.HeldByCurrent() {
		panic(fmt.Sprintf("synch: recursive Lock.Acquire by %v", k.Current()))
	}

	l.sema.Down()
	l.acquired()
}

// TryAcquire acquires l if it is available and reports whether it did. It
// never blocks.
//
// Preconditions: l is not held by the current thread.
func (l *Lock) TryAcquire() bool {
	k := l.sema.kernel()
	if l.HeldByCurrent() {
		panic(fmt.Sprintf("synch: recursive Lock.TryAcquire by %v", k.Current()))
	}
	if !l.sema.TryDown() {
		return false
	}
	l.acquired()
	return true
}

// acquired makes the current thread the holder after a successful down.
func (l *Lock) acquired() {
	k := l.sema.kernel()
	cpu := k.CPU()
	old := cpu.Disable()
	cur := k.Current()
	cur.SetBlockedOn(nil)
	l.holder = cur.TID()

	// Threads still queued on l donated to the previous holder, which
	// dropped them on release. They now donate to us.
	adopted := 0
	for _, w := range l.sema.waiting() {
		if w.BlockedOn() == kernel.Blocker(l) {
			cur.InsertDonor(w)
			adopted++
		}
	}
	if adopted > 0 {
		cur.RefreshPriority()
	}
	cpu.SetLevel(old)
	cur.Logger().Debugf("Acquired lock %p (%d waiting)", l, adopted)
}

// block is called by l.sema, with interrupts disabled, when cur is about to
// block waiting for l.
func (l *Lock) block(cur *kernel.Thread) {
	cur.SetBlockedOn(l)
	if h := l.Holder(); h != nil && h != cur {
		cur.Logger().Debugf("Blocking on lock %p held by %v", l, h)
		h.InsertDonor(cur)
	}
}

// Release releases l and returns any priority it lent the current thread. If
// the current thread's priority had been raised by donation, it yields once
// the lock is handed off.
//
// Preconditions: l is held by the current thread.
func (l *Lock) Release() {
	k := l.sema.kernel()
	if !l.HeldByCurrent() {
		panic(fmt.Sprintf("synch: Lock.Release by %v, which does not hold it", k.Current()))
	}

	cpu := k.CPU()
	old := cpu.Disable()
	cur := k.Current()
	l.holder = 0
	cur.RemoveDonors(func(d *kernel.Thread) bool {
		return d.BlockedOn() == kernel.Blocker(l)
	})
	yield := cur.Priority() > cur.BasePriority()
	cur.RefreshPriority()
	if yield {
		cur.Logger().Debugf("Released lock %p, priority now %d (base %d)", l, cur.Priority(), cur.BasePriority())
	}
	cpu.SetLevel(old)

	l.sema.Up()
	if yield {
		k.Reschedule()
	}
}

// String implements fmt.Stringer.String.
func (l *Lock) String() string {
	return fmt.Sprintf("lock(holder=%d %v)", l.holder, &l.sema)
}
