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
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kthreads/kthreads/pkg/kernel"
)

func TestConditionBroadcast(t *testing.T) {
	var inside, maxInside int
	var returned, notHeld []string
	run(t, kernel.PriDefault, func(k *kernel.Kernel) {
		var l Lock
		var c Condition
		l.Init(k)
		c.Init()
		for i := 0; i < 3; i++ {
			name := fmt.Sprintf("w%d", i)
			k.Create(name, kernel.PriDefault+1, func() {
				l.Acquire()
				c.Wait(&l)
				if !l.HeldByCurrent() {
					notHeld = append(notHeld, name)
				}
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				k.Yield()
				returned = append(returned, name)
				inside--
				l.Release()
			})
		}
		l.Acquire()
		c.Broadcast(&l)
		if n := c.Len(); n != 0 {
			t.Errorf("%d waiters left after Broadcast", n)
		}
		l.Release()
	})
	sort.Strings(returned)
	if diff := cmp.Diff([]string{"w0", "w1", "w2"}, returned); diff != "" {
		t.Errorf("returned from Wait mismatch (-want +got):\n%s", diff)
	}
	if len(notHeld) > 0 {
		t.Errorf("returned from Wait without the lock: %v", notHeld)
	}
	if maxInside != 1 {
		t.Errorf("up to %d threads inside the monitor, want 1", maxInside)
	}
}

func TestConditionSignalPriority(t *testing.T) {
	var r recorder
	run(t, kernel.PriDefault, func(k *kernel.Kernel) {
		var l Lock
		var c Condition
		l.Init(k)
		c.Init()
		for _, p := range []int{40, 50, 45, 40} {
			name := fmt.Sprintf("w%d", p)
			k.Create(name, p, func() {
				l.Acquire()
				c.Wait(&l)
				r.add("%s", name)
				l.Release()
			})
		}
		for c.Len() > 0 {
			l.Acquire()
			c.Signal(&l)
			l.Release()
		}
	})
	r.check(t, "w50", "w45", "w40", "w40")
}

func TestConditionSignalNoWaiters(t *testing.T) {
	var r recorder
	run(t, kernel.PriDefault, func(k *kernel.Kernel) {
		var l Lock
		var c Condition
		l.Init(k)
		c.Init()
		l.Acquire()
		c.Signal(&l)
		c.Broadcast(&l)
		l.Release()
		r.add("done")
	})
	r.check(t, "done")
}

// TestConditionWaitReleasesLock checks that the lock is free while a waiter
// is blocked and held again when Wait returns.
func TestConditionWaitReleasesLock(t *testing.T) {
	var r recorder
	run(t, kernel.PriDefault, func(k *kernel.Kernel) {
		var l Lock
		var c Condition
		l.Init(k)
		c.Init()
		ready := false
		k.Create("waiter", kernel.PriDefault+1, func() {
			l.Acquire()
			for !ready {
				c.Wait(&l)
				r.add("waiter woke, ready=%t held=%t", ready, l.HeldByCurrent())
			}
			l.Release()
		})
		r.add("main try_acquire %t", l.TryAcquire())
		// A spurious signal: the waiter must recheck and wait again.
		c.Signal(&l)
		l.Release()

		l.Acquire()
		ready = true
		c.Signal(&l)
		l.Release()
	})
	r.check(t,
		"main try_acquire true",
		"waiter woke, ready=false held=true",
		"waiter woke, ready=true held=true",
	)
}

func TestConditionPreconditions(t *testing.T) {
	for _, tc := range []struct {
		name string
		want string
		fn   func(k *kernel.Kernel, l *Lock, c *Condition)
	}{
		{
			name: "wait without lock",
			want: "without holding",
			fn:   func(_ *kernel.Kernel, l *Lock, c *Condition) { c.Wait(l) },
		},
		{
			name: "signal without lock",
			want: "without holding",
			fn:   func(_ *kernel.Kernel, l *Lock, c *Condition) { c.Signal(l) },
		},
		{
			name: "broadcast without lock",
			want: "without holding",
			fn:   func(_ *kernel.Kernel, l *Lock, c *Condition) { c.Broadcast(l) },
		},
		{
			name: "nil lock",
			want: "nil lock",
			fn:   func(_ *kernel.Kernel, _ *Lock, c *Condition) { c.Signal(nil) },
		},
		{
			name: "wait in interrupt",
			want: "interrupt context",
			fn: func(k *kernel.Kernel, l *Lock, c *Condition) {
				l.Acquire()
				k.Interrupt(func() { c.Wait(l) })
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mustPanic(t, tc.want, func(k *kernel.Kernel) {
				var l Lock
				var c Condition
				l.Init(k)
				c.Init()
				tc.fn(k, &l, &c)
			})
		})
	}
}
