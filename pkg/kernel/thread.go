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
	"fmt"
	"runtime"

	"github.com/kthreads/kthreads/pkg/ilist"
	"github.com/kthreads/kthreads/pkg/log"
)

// TID is a thread identifier. TIDs are never reused within a Kernel; the zero
// TID refers to no thread.
type TID int32

// Status is the scheduling state of a thread.
type Status int

const (
	// Ready threads are waiting for the processor.
	Ready Status = iota

	// Running is the state of the thread holding the processor.
	Running

	// Blocked threads wait for Unblock.
	Blocked

	// Dying threads have exited and are about to be discarded.
	Dying
)

// String implements fmt.Stringer.String.
func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Dying:
		return "dying"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Blocker is something a thread can wait to acquire, such as a lock. Priority
// donation follows the chain of blockers to their holders.
type Blocker interface {
	// Holder returns the thread that currently holds the blocker, or nil.
	Holder() *Thread
}

// Thread is a kernel thread.
//
// The donation fields (priority, donors, blockedOn) are read and written by
// threads other than t. All such accesses happen with interrupts disabled.
type Thread struct {
	k    *Kernel
	tid  TID
	name string

	status Status

	// priority is the effective priority; basePriority is the priority the
	// thread asked for. priority >= basePriority always.
	priority     int
	basePriority int

	// donors holds the threads blocked on locks this thread holds, highest
	// effective priority first.
	donors ilist.List[TID]

	// donorEntry is t's entry in the donors list of donee, when t is donating.
	donorEntry *ilist.Entry[TID]
	donee      *Thread

	// blockedOn is the lock t is waiting to acquire, if any.
	blockedOn Blocker

	// seq orders equal-priority threads in the ready queue.
	seq uint64

	// wake hands the processor to this thread. It is buffered so that the
	// previous thread never waits for the handoff.
	wake chan struct{}

	log log.Logger
}

func (k *Kernel) newThread(name string, priority int) *Thread {
	checkPriority(priority)
	t := &Thread{
		k:            k,
		tid:          k.nextTID,
		name:         name,
		status:       Blocked,
		priority:     priority,
		basePriority: priority,
		wake:         make(chan struct{}, 1),
	}
	t.log = log.PrefixedLogger(k.log, fmt.Sprintf("[%s:%d] ", name, t.tid))
	k.nextTID++
	k.threads[t.tid] = t
	k.live++
	k.trace(Event{Kind: EventCreate, Thread: name, TID: t.tid, Priority: priority})
	return t
}

// run is the body of the goroutine backing t.
func (t *Thread) run(fn func()) {
	exited := false
	defer func() {
		r := recover()
		if r == nil && exited {
			return
		}
		select {
		case <-t.k.halted:
			// Released by a halted kernel.
			return
		default:
		}
		if r == nil {
			r = "thread goroutine exited without returning"
		}
		t.k.fail(t, r)
	}()

	t.park()
	t.k.cpu.Enable()
	fn()
	t.k.exit()
	exited = true
}

// park waits until the processor is handed to t.
func (t *Thread) park() {
	select {
	case <-t.wake:
	case <-t.k.halted:
		runtime.Goexit()
	}
}

// TID returns t's thread ID.
func (t *Thread) TID() TID {
	return t.tid
}

// Name returns t's name.
func (t *Thread) Name() string {
	return t.name
}

// Status returns t's scheduling state.
func (t *Thread) Status() Status {
	return t.status
}

// Priority returns t's effective priority.
func (t *Thread) Priority() int {
	return t.priority
}

// BasePriority returns t's base priority.
func (t *Thread) BasePriority() int {
	return t.basePriority
}

// Logger returns a logger that tags messages with t.
func (t *Thread) Logger() log.Logger {
	return t.log
}

// BlockedOn returns the blocker t is waiting on, or nil.
func (t *Thread) BlockedOn() Blocker {
	return t.blockedOn
}

// SetBlockedOn records that t is waiting on b, or clears it if b is nil.
//
// Preconditions: interrupts are disabled.
func (t *Thread) SetBlockedOn(b Blocker) {
	t.blockedOn = b
}

// donorLess orders donors by descending effective priority.
func (k *Kernel) donorLess(a, b TID) bool {
	return k.threads[a].priority > k.threads[b].priority
}

// InsertDonor records d as a donor of t, keeping t's donors ordered by
// descending effective priority. It does not change any priority; see
// Kernel.DonatePriority.
//
// Preconditions: interrupts are disabled; d != t.
func (t *Thread) InsertDonor(d *Thread) {
	if d == t {
		panic(fmt.Sprintf("thread %q cannot donate to itself", t.name))
	}
	d.withdraw()
	d.donorEntry = t.donors.InsertOrdered(d.tid, t.k.donorLess)
	d.donee = t
}

// withdraw removes t from the donor list it is in, if any.
func (t *Thread) withdraw() {
	if t.donee == nil {
		return
	}
	t.donee.donors.Remove(t.donorEntry)
	t.donorEntry = nil
	t.donee = nil
}

// RemoveDonors removes every donor of t for which pred returns true and
// returns how many were removed.
//
// Preconditions: interrupts are disabled.
func (t *Thread) RemoveDonors(pred func(d *Thread) bool) int {
	return t.donors.RemoveIf(func(tid TID) bool {
		d := t.k.threads[tid]
		if !pred(d) {
			return false
		}
		d.donorEntry = nil
		d.donee = nil
		return true
	})
}

// FrontDonor returns t's highest-priority donor, or nil.
func (t *Thread) FrontDonor() *Thread {
	if e := t.donors.Front(); e != nil {
		return t.k.threads[e.Value]
	}
	return nil
}

// Donors returns the TIDs of t's donors, highest priority first.
func (t *Thread) Donors() []TID {
	var tids []TID
	for e := t.donors.Front(); e != nil; e = e.Next() {
		tids = append(tids, e.Value)
	}
	return tids
}

// RefreshPriority recomputes t's effective priority from scratch: its base
// priority, raised to its highest donor's priority if that is greater.
//
// Preconditions: interrupts are disabled.
func (t *Thread) RefreshPriority() {
	p := t.basePriority
	if d := t.FrontDonor(); d != nil && d.priority > p {
		p = d.priority
	}
	t.k.setPriority(t, p)
}

// String implements fmt.Stringer.String.
func (t *Thread) String() string {
	return fmt.Sprintf("%s(%d)", t.name, t.tid)
}
