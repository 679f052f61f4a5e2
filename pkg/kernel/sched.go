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

	"github.com/kthreads/kthreads/pkg/intr"
	"github.com/kthreads/kthreads/pkg/log"
)

// readyLess orders the ready queue: higher effective priority first, then
// earlier enqueue first.
func readyLess(a, b *Thread) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

// makeReady puts t at the back of its priority class in the ready queue.
//
// Preconditions: interrupts are disabled.
func (k *Kernel) makeReady(t *Thread) {
	k.seq++
	t.seq = k.seq
	t.status = Ready
	k.ready.ReplaceOrInsert(t)
}

// schedule hands the processor to the best ready thread, or to the idle
// context if there is none, and parks the current thread until it is chosen
// again. A dying current thread is not parked.
//
// Preconditions: interrupts are disabled; k.current.status != Running.
func (k *Kernel) schedule() {
	if k.cpu.Level() != intr.Off {
		panic("schedule with interrupts enabled")
	}
	cur := k.current
	if cur.status == Running {
		panic(fmt.Sprintf("schedule from running thread %v", cur))
	}

	next, ok := k.ready.DeleteMin()
	if ok {
		next.status = Running
	}
	k.current = next
	if next == cur {
		return
	}

	dying := cur.status == Dying
	if ok {
		k.trace(Event{Kind: EventSwitch, Thread: next.name, TID: next.tid, Priority: next.priority, Peer: cur.name})
		if k.log.IsLogging(log.Debug) {
			k.log.Debugf("Switch %v -> %v", cur, next)
		}
		next.wake <- struct{}{}
	} else {
		k.idle <- struct{}{}
	}

	// From here on another thread may be running; cur must not touch any
	// kernel state until it is handed the processor again.
	if dying {
		return
	}
	cur.park()
}

// Block puts the current thread to sleep. It will not run again until it is
// passed to Unblock.
//
// Preconditions: interrupts are disabled; not in interrupt context.
func (k *Kernel) Block() {
	if k.cpu.InContext() {
		panic("Block called in interrupt context")
	}
	if k.cpu.Level() != intr.Off {
		panic("Block called with interrupts enabled")
	}
	cur := k.current
	cur.status = Blocked
	k.trace(Event{Kind: EventBlock, Thread: cur.name, TID: cur.tid, Priority: cur.priority})
	k.schedule()
}

// Unblock makes blocked thread t ready to run. It does not preempt the
// current thread; callers decide whether to yield.
func (k *Kernel) Unblock(t *Thread) {
	old := k.cpu.Disable()
	if t.status != Blocked {
		panic(fmt.Sprintf("Unblock of %s thread %v", t.status, t))
	}
	k.makeReady(t)
	k.trace(Event{Kind: EventUnblock, Thread: t.name, TID: t.tid, Priority: t.priority})
	k.cpu.SetLevel(old)
}

// Yield gives up the processor. The current thread stays ready and may be
// chosen again immediately if nothing outranks it.
//
// Preconditions: not in interrupt context.
func (k *Kernel) Yield() {
	if k.cpu.InContext() {
		panic("Yield called in interrupt context")
	}
	old := k.cpu.Disable()
	k.makeReady(k.current)
	k.schedule()
	k.cpu.SetLevel(old)
}

// Reschedule yields the processor, or, inside an interrupt handler, arranges
// for the interrupted thread to yield when the handler returns.
func (k *Kernel) Reschedule() {
	if k.cpu.InContext() {
		k.cpu.YieldOnReturn()
		return
	}
	k.Yield()
}

// preemptIfOutranked reschedules if a ready thread has a higher effective
// priority than the current thread.
func (k *Kernel) preemptIfOutranked() {
	old := k.cpu.Disable()
	top, ok := k.ready.Min()
	outranked := ok && top.priority > k.current.priority
	k.cpu.SetLevel(old)
	if outranked {
		k.Reschedule()
	}
}

// Create starts a new thread running fn at the given priority and returns its
// TID. If the new thread outranks the caller, the caller yields to it.
func (k *Kernel) Create(name string, priority int, fn func()) TID {
	old := k.cpu.Disable()
	t := k.newThread(name, priority)
	go t.run(fn)
	k.makeReady(t)
	k.cpu.SetLevel(old)
	t.log.Debugf("Created at priority %d", priority)

	k.preemptIfOutranked()
	return t.tid
}

// exit destroys the current thread. It does not return to the thread's code.
func (k *Kernel) exit() {
	k.cpu.Disable()
	cur := k.current
	cur.status = Dying
	delete(k.threads, cur.tid)
	k.live--
	k.trace(Event{Kind: EventExit, Thread: cur.name, TID: cur.tid, Priority: cur.priority})
	cur.log.Debugf("Exiting")
	k.schedule()
}

// SetPriority sets the current thread's base priority. Its effective priority
// becomes the new base priority, unless a donor keeps it higher. The thread
// yields if it no longer has the highest priority.
func (k *Kernel) SetPriority(priority int) {
	checkPriority(priority)
	old := k.cpu.Disable()
	cur := k.current
	cur.basePriority = priority
	cur.RefreshPriority()
	k.cpu.SetLevel(old)

	k.preemptIfOutranked()
}
