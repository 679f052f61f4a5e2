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

// Package scenario runs declarative scripts of kernel threads exercising the
// synchronization primitives, and records what each thread observed.
//
// A scenario declares semaphores, locks, condition variables, and threads.
// Each thread runs a list of ops, one per line, such as "acquire a" or
// "wait c a". The first thread is the main thread; the others start when
// some thread runs "create NAME". Ops that observe something append a line of
// the form "thread: text" to the scenario's output, which can be compared
// against the scenario's expected output.
//
// Scenarios are written in TOML, or in YAML when the file name ends in .yaml
// or .yml.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"

	"github.com/kthreads/kthreads/pkg/kernel"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid scenario")

// Scenario is a parsed scenario file.
type Scenario struct {
	// Name identifies the scenario in output. Load sets it to the file
	// name.
	Name string `toml:"-" yaml:"-"`

	Description string   `toml:"description" yaml:"description"`
	Expect      []string `toml:"expect" yaml:"expect"`

	Kernel     KernelConfig    `toml:"kernel" yaml:"kernel"`
	Semaphores []SemaphoreDecl `toml:"semaphores" yaml:"semaphores"`
	Locks      []ObjectDecl    `toml:"locks" yaml:"locks"`
	Conditions []ObjectDecl    `toml:"conditions" yaml:"conditions"`
	Threads    []ThreadDecl    `toml:"threads" yaml:"threads"`

	// programs holds the compiled ops of each thread, indexed like Threads.
	programs [][]*op
}

// KernelConfig configures the kernel a scenario runs on.
type KernelConfig struct {
	// DonationDepth overrides the kernel's donation depth bound when
	// positive.
	DonationDepth int `toml:"donation_depth" yaml:"donation_depth"`
}

// SemaphoreDecl declares a semaphore.
type SemaphoreDecl struct {
	Name  string `toml:"name" yaml:"name"`
	Value uint   `toml:"value" yaml:"value"`
}

// ObjectDecl declares a lock or a condition variable.
type ObjectDecl struct {
	Name string `toml:"name" yaml:"name"`
}

// ThreadDecl declares a thread.
type ThreadDecl struct {
	Name string `toml:"name" yaml:"name"`

	// Priority is the thread's base priority. Nil means
	// kernel.PriDefault.
	Priority *int `toml:"priority" yaml:"priority"`

	Ops []string `toml:"ops" yaml:"ops"`
}

func (t *ThreadDecl) priority() int {
	if t.Priority == nil {
		return kernel.PriDefault
	}
	return *t.Priority
}

// Load reads and compiles the scenario in the named file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read scenario: %w", err)
	}
	s, err := Parse(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and compiles a scenario. The format is chosen from name's
// extension. Unknown keys are errors in both formats.
func Parse(name string, data []byte) (*Scenario, error) {
	s := &Scenario{Name: name}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.SetStrict(true)
		if err := dec.Decode(s); err != nil {
			return nil, fmt.Errorf("unable to decode YAML: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), s)
		if err != nil {
			return nil, fmt.Errorf("unable to decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalid, undecoded)
		}
	}
	if err := s.Compile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Compile validates s and prepares it to run. Parse calls it; scenarios built
// in code must call it before Run.
func (s *Scenario) Compile() error {
	if len(s.Threads) == 0 {
		return fmt.Errorf("%w: no threads", ErrInvalid)
	}
	if s.Kernel.DonationDepth < 0 {
		return fmt.Errorf("%w: negative donation_depth %d", ErrInvalid, s.Kernel.DonationDepth)
	}

	st := &symbols{
		sems:    make(map[string]int),
		locks:   make(map[string]int),
		conds:   make(map[string]int),
		threads: make(map[string]int),
	}
	for i, d := range s.Semaphores {
		if err := declare(st.sems, "semaphore", d.Name, i); err != nil {
			return err
		}
	}
	for i, d := range s.Locks {
		if err := declare(st.locks, "lock", d.Name, i); err != nil {
			return err
		}
	}
	for i, d := range s.Conditions {
		if err := declare(st.conds, "condition", d.Name, i); err != nil {
			return err
		}
	}
	for i := range s.Threads {
		d := &s.Threads[i]
		if err := declare(st.threads, "thread", d.Name, i); err != nil {
			return err
		}
		if p := d.priority(); p < kernel.PriMin || p > kernel.PriMax {
			return fmt.Errorf("%w: thread %q: priority %d out of range [%d, %d]", ErrInvalid, d.Name, p, kernel.PriMin, kernel.PriMax)
		}
	}

	created := make(map[int]bool)
	programs := make([][]*op, len(s.Threads))
	for i, d := range s.Threads {
		for j, line := range d.Ops {
			o, err := st.parse(line, false)
			if err != nil {
				return fmt.Errorf("%w: thread %q op %d %q: %v", ErrInvalid, d.Name, j+1, line, err)
			}
			if o.code == opCreate {
				switch {
				case o.obj == 0:
					return fmt.Errorf("%w: thread %q op %d: the main thread %q cannot be created", ErrInvalid, d.Name, j+1, s.Threads[0].Name)
				case created[o.obj]:
					return fmt.Errorf("%w: thread %q op %d: thread %q is created twice", ErrInvalid, d.Name, j+1, s.Threads[o.obj].Name)
				}
				created[o.obj] = true
			}
			programs[i] = append(programs[i], o)
		}
	}
	s.programs = programs
	return nil
}

func declare(names map[string]int, kind, name string, i int) error {
	if name == "" || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("%w: %s %d has invalid name %q", ErrInvalid, kind, i+1, name)
	}
	if _, ok := names[name]; ok {
		return fmt.Errorf("%w: %s %q declared twice", ErrInvalid, kind, name)
	}
	names[name] = i
	return nil
}
