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

// Package intr models the interrupt state of a single simulated processor.
//
// The interrupt level is the kernel's only mutual-exclusion device: while it
// is Off, the running thread cannot be preempted, so a Disable/SetLevel pair
// brackets an atomic section. Sections nest because SetLevel restores the
// level captured by the matching Disable rather than turning interrupts back
// on unconditionally.
//
// A CPU is not safe for concurrent use; the kernel guarantees that only the
// thread currently holding the processor touches it.
package intr

import "fmt"

// Level is an interrupt level.
type Level int

const (
	// Off means interrupts are disabled.
	Off Level = iota

	// On means interrupts are enabled.
	On
)

// String implements fmt.Stringer.String.
func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case On:
		return "on"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// CPU holds the interrupt state of the processor.
type CPU struct {
	level Level

	// inContext is true while an external interrupt handler runs.
	inContext bool

	// yieldOnReturn is set by a handler that wants the interrupted thread to
	// yield once the handler returns.
	yieldOnReturn bool
}

// Level returns the current interrupt level.
func (c *CPU) Level() Level {
	return c.level
}

// SetLevel sets the interrupt level to l and returns the previous level.
func (c *CPU) SetLevel(l Level) Level {
	if l == On {
		return c.Enable()
	}
	return c.Disable()
}

// Disable disables interrupts and returns the previous level.
func (c *CPU) Disable() Level {
	old := c.level
	c.level = Off
	return old
}

// Enable enables interrupts and returns the previous level.
//
// Preconditions: !c.InContext().
func (c *CPU) Enable() Level {
	if c.inContext {
		panic("intr: enabling interrupts inside an interrupt handler")
	}
	old := c.level
	c.level = On
	return old
}

// InContext returns true while an external interrupt handler is running.
func (c *CPU) InContext() bool {
	return c.inContext
}

// YieldOnReturn asks for the interrupted thread to yield the processor when
// the current handler returns.
//
// Preconditions: c.InContext().
func (c *CPU) YieldOnReturn() {
	if !c.inContext {
		panic("intr: YieldOnReturn outside an interrupt handler")
	}
	c.yieldOnReturn = true
}

// Handle runs handler as an external interrupt handler: with interrupts off
// and InContext reporting true. It returns whether the handler asked to yield
// on return. Interrupts are delivered only while enabled and never nest.
//
// Preconditions: c.Level() == On; !c.InContext().
func (c *CPU) Handle(handler func()) (yield bool) {
	if c.level != On {
		panic("intr: interrupt delivered with interrupts disabled")
	}
	if c.inContext {
		panic("intr: nested external interrupt")
	}
	c.level = Off
	c.inContext = true
	c.yieldOnReturn = false

	handler()

	if c.level != Off {
		panic("intr: interrupt handler returned with interrupts enabled")
	}
	c.inContext = false
	c.level = On
	yield = c.yieldOnReturn
	c.yieldOnReturn = false
	return yield
}
