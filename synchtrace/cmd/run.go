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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/kthreads/kthreads/synchtrace/config"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// trace interleaves kernel events with the output.
	trace bool

	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run scenarios and print what their threads observed"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <scenario file>... - run scenarios and print their output.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.trace, "trace", false, "interleave kernel scheduling events with the output.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	out := r.stdout
	if out == nil {
		out = os.Stdout
	}

	_, results, err := runAll(ctx, conf, f.Args())
	if err != nil {
		Fatalf("%v", err)
	}

	status := subcommands.ExitSuccess
	for _, res := range results {
		fmt.Fprintf(out, "== %s\n", res.Name)
		lines := res.Output
		if r.trace {
			lines = res.Trace
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		if res.Err != nil {
			fmt.Fprintf(out, "!! %v\n", res.Err)
			status = subcommands.ExitFailure
		}
	}
	return status
}
