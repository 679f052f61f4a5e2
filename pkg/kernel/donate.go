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

package kernel

import (
	"github.com/kthreads/kthreads/pkg/intr"
)

// DonatePriority donates the current thread's effective priority along its
// chain of blockers: the holder of the lock it waits on, the holder of the
// lock that thread waits on, and so on, up to the kernel's donation depth.
// Every holder along the chain whose effective priority is lower is raised
// to the current thread's.
//
// It is called by a thread about to block, and by a thread whose
// non-blocking attempt failed.
//
// Preconditions: interrupts are disabled.
func (k *Kernel) DonatePriority() {
	if k.cpu.Level() != intr.Off {
		panic("DonatePriority called with interrupts enabled")
	}
	cur := k.current
	t := cur
	for depth := 0; ; depth++ {
		if t.blockedOn == nil {
			return
		}
		h := t.blockedOn.Holder()
		if h == nil || h == t {
			return
		}
		if depth == k.opts.DonationDepth {
			k.depthLog.Warningf("Donation from %v stopped at %v after %d hops", cur, h, depth)
			return
		}
		if h.priority < cur.priority {
			h.log.Debugf("Receiving priority %d from %v (was %d)", cur.priority, cur, h.priority)
			k.trace(Event{Kind: EventDonate, Thread: h.name, TID: h.tid, Priority: cur.priority, Peer: cur.name})
			k.setPriority(h, cur.priority)
		}
		t = h
	}
}

// setPriority changes t's effective priority, keeping the ready queue and the
// donor list t belongs to ordered.
//
// Preconditions: interrupts are disabled.
func (k *Kernel) setPriority(t *Thread, p int) {
	if t.priority == p {
		return
	}
	queued := t.status == Ready
	if queued {
		k.ready.Delete(t)
	}
	t.priority = p
	if queued {
		k.ready.ReplaceOrInsert(t)
	}
	if d := t.donee; d != nil {
		d.donors.Remove(t.donorEntry)
		t.donorEntry = d.donors.InsertOrdered(t.tid, k.donorLess)
	}
	k.trace(Event{Kind: EventPriority, Thread: t.name, TID: t.tid, Priority: p})
}
