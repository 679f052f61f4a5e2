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

package scenario

import (
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kthreads/kthreads/pkg/kernel"
	"github.com/kthreads/kthreads/pkg/synch"
)

// ErrMismatch is returned by Check when a scenario's output differs from its
// expected output.
var ErrMismatch = errors.New("output does not match expectation")

// Result is the outcome of running a scenario.
type Result struct {
	Name string

	// Output holds the lines emitted by the scenario's ops, in order.
	Output []string

	// Trace holds Output interleaved with the kernel's scheduling events.
	Trace []string

	// Err is the kernel's error: a *kernel.PanicError, a deadlock, or nil.
	Err error
}

// Diff returns a human-readable report of the differences between expect and
// the output, or "" if they are equal.
func (r *Result) Diff(expect []string) string {
	return cmp.Diff(expect, r.Output, cmpopts.EquateEmpty())
}

// instance is one run of a scenario.
type instance struct {
	s     *Scenario
	k     *kernel.Kernel
	sems  []synch.Semaphore
	locks []synch.Lock
	conds []synch.Condition

	out   []string
	trace []string
}

// Run runs s on a new kernel configured by opts. A positive donation depth in
// the scenario overrides opts.DonationDepth. If opts.Tracer is set it is
// called in addition to the scenario's own tracing.
func (s *Scenario) Run(opts kernel.Options) *Result {
	if s.programs == nil {
		panic(fmt.Sprintf("scenario %q run before Compile", s.Name))
	}
	if s.Kernel.DonationDepth > 0 {
		opts.DonationDepth = s.Kernel.DonationDepth
	}
	in := &instance{s: s}
	next := opts.Tracer
	opts.Tracer = func(e kernel.Event) {
		in.trace = append(in.trace, "  "+e.String())
		if next != nil {
			next(e)
		}
	}
	in.k = kernel.New(opts)

	in.sems = make([]synch.Semaphore, len(s.Semaphores))
	for i, d := range s.Semaphores {
		in.sems[i].Init(in.k, d.Value)
	}
	in.locks = make([]synch.Lock, len(s.Locks))
	for i := range in.locks {
		in.locks[i].Init(in.k)
	}
	in.conds = make([]synch.Condition, len(s.Conditions))
	for i := range in.conds {
		in.conds[i].Init()
	}

	main := &s.Threads[0]
	err := in.k.Run(main.Name, main.priority(), func() { in.thread(0) })
	return &Result{
		Name:   s.Name,
		Output: in.out,
		Trace:  in.trace,
		Err:    err,
	}
}

// Check returns nil if r completed cleanly and produced the expected output.
func (s *Scenario) Check(r *Result) error {
	if r.Err != nil {
		return fmt.Errorf("%s: %w", s.Name, r.Err)
	}
	if diff := r.Diff(s.Expect); diff != "" {
		return fmt.Errorf("%s: %w (-want +got):\n%s", s.Name, ErrMismatch, diff)
	}
	return nil
}

// thread runs the ops of thread i.
func (in *instance) thread(i int) {
	for _, o := range in.s.programs[i] {
		in.exec(o)
	}
}

// emit records an output line for the current thread.
func (in *instance) emit(format string, v ...any) {
	line := in.k.Current().Name() + ": " + fmt.Sprintf(format, v...)
	in.out = append(in.out, line)
	in.trace = append(in.trace, line)
}

func okBusy(ok bool) string {
	if ok {
		return "ok"
	}
	return "busy"
}

func (in *instance) exec(o *op) {
	switch o.code {
	case opDown:
		in.sems[o.obj].Down()
		in.emit("down %s", o.args[0])
	case opTryDown:
		in.emit("%v %s", o, okBusy(in.sems[o.obj].TryDown()))
	case opUp:
		in.sems[o.obj].Up()
	case opAcquire:
		in.locks[o.obj].Acquire()
		in.emit("acquired %s", o.args[0])
	case opTryAcquire:
		in.emit("%v %s", o, okBusy(in.locks[o.obj].TryAcquire()))
	case opRelease:
		in.locks[o.obj].Release()
	case opWait:
		in.conds[o.obj].Wait(&in.locks[o.lock])
		in.emit("woke %s", o.args[0])
	case opSignal:
		in.conds[o.obj].Signal(&in.locks[o.lock])
	case opBroadcast:
		in.conds[o.obj].Broadcast(&in.locks[o.lock])
	case opCreate:
		i := o.obj
		d := &in.s.Threads[i]
		in.k.Create(d.Name, d.priority(), func() { in.thread(i) })
	case opYield:
		in.k.Yield()
	case opSetPriority:
		in.k.SetPriority(o.priority)
	case opPriority:
		in.emit("priority %d", in.k.Current().Priority())
	case opMsg:
		in.emit("%s", o.text)
	case opInterrupt:
		in.k.Interrupt(func() { in.exec(o.inner) })
	default:
		panic(fmt.Sprintf("unknown op code %d", o.code))
	}
}
