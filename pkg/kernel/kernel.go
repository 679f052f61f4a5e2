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

// Package kernel provides the threads of a simulated uniprocessor kernel.
//
// Each kernel thread is backed by a goroutine, but at most one of them holds
// the processor at any time: a context switch hands the processor to the next
// thread through that thread's wake channel and parks the previous one. The
// scheduler is strict-priority with FIFO order among equal priorities.
//
// All scheduler state, including the priority donation bookkeeping that
// package synch maintains through Thread, is protected by the interrupt level
// of the kernel's CPU rather than by a mutex: code that mutates it runs with
// interrupts disabled, and only the thread holding the processor ever runs.
//
// Lock ordering: none. There are no locks in this package.
package kernel

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/kthreads/kthreads/pkg/intr"
	"github.com/kthreads/kthreads/pkg/log"
)

// Thread priorities.
const (
	// PriMin is the lowest thread priority.
	PriMin = 0

	// PriDefault is the priority given to threads that don't ask for one.
	PriDefault = 31

	// PriMax is the highest thread priority.
	PriMax = 63
)

// DefaultDonationDepth bounds how many lock holders a single donation walks
// through when Options.DonationDepth is not set.
const DefaultDonationDepth = 8

// ErrDeadlock is returned by Run when no thread can run but some threads are
// still blocked.
var ErrDeadlock = errors.New("deadlock: all live threads are blocked")

// PanicError is returned by Run when a thread violated a precondition or
// otherwise panicked. The kernel halts at the first panic.
type PanicError struct {
	// Thread and TID identify the faulting thread.
	Thread string
	TID    TID

	// Value is the value passed to panic.
	Value any

	// Stack is the faulting goroutine's stack at the time of the panic.
	Stack []byte
}

// Error implements error.Error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic in thread %q (tid %d): %v", e.Thread, e.TID, e.Value)
}

// Options configures a Kernel.
type Options struct {
	// DonationDepth bounds the number of lock holders visited by a single
	// call to DonatePriority. Zero means DefaultDonationDepth.
	DonationDepth int

	// Logger receives kernel debug output. Nil means the global logger.
	Logger log.Logger

	// Tracer, if set, is called synchronously for every scheduling and
	// donation event.
	Tracer Tracer
}

// Kernel is a simulated uniprocessor kernel.
type Kernel struct {
	opts Options

	// cpu is the interrupt state of the processor.
	cpu intr.CPU

	// threads is the thread table. Thread references held by other
	// structures are TIDs resolved through this table.
	threads map[TID]*Thread
	nextTID TID

	// live is the number of threads that have not exited.
	live int

	// current is the thread holding the processor, or nil when idle.
	current *Thread

	// ready holds runnable threads ordered by effective priority, then by
	// enqueue order.
	ready *btree.BTreeG[*Thread]
	seq   uint64

	started bool

	// idle receives a value each time the processor falls idle.
	idle chan struct{}

	// halted is closed when the kernel stops for good; parked threads exit.
	halted   chan struct{}
	haltOnce sync.Once
	err      error

	log      log.Logger
	depthLog log.Logger
}

// New returns a new Kernel with no threads.
func New(opts Options) *Kernel {
	if opts.DonationDepth <= 0 {
		opts.DonationDepth = DefaultDonationDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Log()
	}
	return &Kernel{
		opts:     opts,
		threads:  make(map[TID]*Thread),
		nextTID:  1,
		ready:    btree.NewG[*Thread](8, readyLess),
		idle:     make(chan struct{}, 1),
		halted:   make(chan struct{}),
		log:      logger,
		depthLog: log.RateLimitedLogger(logger, time.Second),
	}
}

// DonationDepth returns the configured donation depth bound.
func (k *Kernel) DonationDepth() int {
	return k.opts.DonationDepth
}

// CPU returns the processor's interrupt state. It is the atomic section used
// by every synchronization primitive built on this kernel.
func (k *Kernel) CPU() *intr.CPU {
	return &k.cpu
}

// Current returns the thread holding the processor. Inside an interrupt
// handler this is the interrupted thread.
func (k *Kernel) Current() *Thread {
	return k.current
}

// Thread returns the live thread with the given TID, or nil.
func (k *Kernel) Thread(tid TID) *Thread {
	if tid == 0 {
		return nil
	}
	return k.threads[tid]
}

// Threads returns the live threads ordered by TID.
func (k *Kernel) Threads() []*Thread {
	ts := make([]*Thread, 0, len(k.threads))
	for _, t := range k.threads {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].tid < ts[j].tid })
	return ts
}

// Run starts a main thread running fn and waits until every thread has
// exited, the kernel panicked, or the remaining threads deadlocked. Run may
// be called only once per Kernel.
func (k *Kernel) Run(name string, priority int, fn func()) error {
	if k.started {
		return errors.New("kernel: Run called twice")
	}
	k.started = true

	t := k.newThread(name, priority)
	go t.run(fn)
	k.log.Debugf("Starting main thread %q at priority %d", name, priority)
	t.status = Running
	k.current = t
	k.trace(Event{Kind: EventSwitch, Thread: t.name, TID: t.tid, Priority: t.priority})
	t.wake <- struct{}{}

	<-k.idle
	if k.err != nil {
		return k.err
	}
	if k.live > 0 {
		var blocked []string
		for _, t := range k.Threads() {
			blocked = append(blocked, fmt.Sprintf("%s(%d)", t.name, t.tid))
		}
		err := fmt.Errorf("%w: %s", ErrDeadlock, strings.Join(blocked, ", "))
		k.log.Warningf("%v", err)
		k.halt(err)
		return err
	}
	k.log.Debugf("All threads exited")
	return nil
}

// Interrupt delivers an external interrupt to the processor: handler runs on
// the current thread in interrupt context. If the handler asked to yield on
// return, the interrupted thread yields afterwards.
//
// Preconditions: interrupts are enabled; not already in interrupt context.
func (k *Kernel) Interrupt(handler func()) {
	if k.cpu.Handle(handler) {
		k.Yield()
	}
}

// halt stops the kernel for good. Threads that are parked, now or later,
// exit instead of resuming.
func (k *Kernel) halt(err error) {
	k.haltOnce.Do(func() {
		if k.err == nil {
			k.err = err
		}
		close(k.halted)
	})
}

// fail records a panic raised by thread t and hands the processor back to
// Run. Nothing resumes after a kernel panic.
func (k *Kernel) fail(t *Thread, r any) {
	err := &PanicError{
		Thread: t.name,
		TID:    t.tid,
		Value:  r,
		Stack:  debug.Stack(),
	}
	k.log.Warningf("Kernel panic in thread %q (tid %d): %v", t.name, t.tid, r)
	k.halt(err)
	k.current = nil
	k.idle <- struct{}{}
}

func (k *Kernel) trace(e Event) {
	if k.opts.Tracer != nil {
		k.opts.Tracer(e)
	}
}

// checkPriority panics if p is out of range.
func checkPriority(p int) {
	if p < PriMin || p > PriMax {
		panic(fmt.Sprintf("priority %d out of range [%d, %d]", p, PriMin, PriMax))
	}
}
