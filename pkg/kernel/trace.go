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

import "fmt"

// EventKind identifies a kernel event.
type EventKind int

// Kernel events.
const (
	// EventCreate: Thread was created at Priority.
	EventCreate EventKind = iota

	// EventSwitch: Thread took the processor from Peer. Peer is empty for the
	// first switch.
	EventSwitch

	// EventBlock: Thread blocked.
	EventBlock

	// EventUnblock: Thread became ready.
	EventUnblock

	// EventDonate: Peer donated Priority to Thread.
	EventDonate

	// EventPriority: Thread's effective priority became Priority.
	EventPriority

	// EventExit: Thread exited.
	EventExit
)

var eventNames = [...]string{
	EventCreate:   "create",
	EventSwitch:   "switch",
	EventBlock:    "block",
	EventUnblock:  "unblock",
	EventDonate:   "donate",
	EventPriority: "priority",
	EventExit:     "exit",
}

// String implements fmt.Stringer.String.
func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event describes something the scheduler did.
type Event struct {
	Kind     EventKind
	Thread   string
	TID      TID
	Priority int
	Peer     string
}

// String implements fmt.Stringer.String.
func (e Event) String() string {
	s := fmt.Sprintf("%s %s(%d) pri=%d", e.Kind, e.Thread, e.TID, e.Priority)
	if e.Peer != "" {
		s += " peer=" + e.Peer
	}
	return s
}

// Tracer receives kernel events. It runs on the thread that caused the event,
// with interrupts possibly disabled, and must not call back into the kernel.
type Tracer func(Event)
