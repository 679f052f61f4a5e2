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
	"fmt"
	"strconv"
	"strings"

	"github.com/kthreads/kthreads/pkg/kernel"
)

type opCode int

const (
	opDown opCode = iota
	opTryDown
	opUp
	opAcquire
	opTryAcquire
	opRelease
	opWait
	opSignal
	opBroadcast
	opCreate
	opYield
	opSetPriority
	opPriority
	opMsg
	opInterrupt
)

// opKind describes the operands of an op.
type opKind int

const (
	// kindNone takes no operand.
	kindNone opKind = iota
	kindSema
	kindLock
	// kindCond takes a condition and a lock.
	kindCond
	kindThread
	kindPriority
	// kindText takes the rest of the line verbatim.
	kindText
	// kindOp takes the rest of the line as another op.
	kindOp
)

var ops = map[string]struct {
	code opCode
	kind opKind
}{
	"down":         {opDown, kindSema},
	"try_down":     {opTryDown, kindSema},
	"up":           {opUp, kindSema},
	"acquire":      {opAcquire, kindLock},
	"try_acquire":  {opTryAcquire, kindLock},
	"release":      {opRelease, kindLock},
	"wait":         {opWait, kindCond},
	"signal":       {opSignal, kindCond},
	"broadcast":    {opBroadcast, kindCond},
	"create":       {opCreate, kindThread},
	"yield":        {opYield, kindNone},
	"set_priority": {opSetPriority, kindPriority},
	"priority":     {opPriority, kindNone},
	"msg":          {opMsg, kindText},
	"interrupt":    {opInterrupt, kindOp},
}

// arity is the number of arguments of each fixed-size kind.
var arity = map[opKind]int{
	kindNone:     0,
	kindSema:     1,
	kindLock:     1,
	kindCond:     2,
	kindThread:   1,
	kindPriority: 1,
}

// op is one compiled scenario op.
type op struct {
	code opCode

	// name is the op's first word, and args the words after it.
	name string
	args []string

	// obj indexes the semaphore, lock, condition, or thread named by the
	// first argument. lock indexes the lock of a condition op.
	obj  int
	lock int

	priority int
	text     string

	// inner is the op run by an interrupt.
	inner *op
}

// symbols resolves object names to declaration indexes.
type symbols struct {
	sems    map[string]int
	locks   map[string]int
	conds   map[string]int
	threads map[string]int
}

func lookup(names map[string]int, kind, name string) (int, error) {
	i, ok := names[name]
	if !ok {
		return 0, fmt.Errorf("unknown %s %q", kind, name)
	}
	return i, nil
}

// parse compiles one op line.
func (st *symbols) parse(line string, inInterrupt bool) (*op, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty op")
	}
	def, ok := ops[fields[0]]
	if !ok {
		return nil, fmt.Errorf("unknown op %q", fields[0])
	}
	o := &op{code: def.code, name: fields[0], args: fields[1:]}

	if n, ok := arity[def.kind]; ok && len(o.args) != n {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", o.name, n, len(o.args))
	}

	var err error
	switch def.kind {
	case kindSema:
		o.obj, err = lookup(st.sems, "semaphore", o.args[0])
	case kindLock:
		o.obj, err = lookup(st.locks, "lock", o.args[0])
	case kindCond:
		if o.obj, err = lookup(st.conds, "condition", o.args[0]); err == nil {
			o.lock, err = lookup(st.locks, "lock", o.args[1])
		}
	case kindThread:
		o.obj, err = lookup(st.threads, "thread", o.args[0])
	case kindPriority:
		o.priority, err = strconv.Atoi(o.args[0])
		if err == nil && (o.priority < kernel.PriMin || o.priority > kernel.PriMax) {
			err = fmt.Errorf("priority %d out of range [%d, %d]", o.priority, kernel.PriMin, kernel.PriMax)
		}
	case kindText:
		o.text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), o.name))
	case kindOp:
		if inInterrupt {
			return nil, fmt.Errorf("interrupts do not nest")
		}
		if len(o.args) == 0 {
			return nil, fmt.Errorf("interrupt needs an op")
		}
		o.inner, err = st.parse(strings.Join(o.args, " "), true)
		if err == nil && o.inner.code == opCreate {
			err = fmt.Errorf("threads cannot be created by an interrupt handler")
		}
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// String returns the op as written, with whitespace normalized.
func (o *op) String() string {
	if len(o.args) == 0 {
		return o.name
	}
	return o.name + " " + strings.Join(o.args, " ")
}
