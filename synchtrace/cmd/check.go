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

// Check implements subcommands.Command for the "check" command.
type Check struct {
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "run scenarios and compare their output with the expected output"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return `check [flags] <scenario file>... - run scenarios and fail if any output differs from its "expect" list.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Check) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	out := c.stdout
	if out == nil {
		out = os.Stdout
	}

	scenarios, results, err := runAll(ctx, conf, f.Args())
	if err != nil {
		Fatalf("%v", err)
	}

	failed := 0
	for i, s := range scenarios {
		if err := s.Check(results[i]); err != nil {
			fmt.Fprintf(out, "FAIL %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", s.Name)
	}
	if failed > 0 {
		fmt.Fprintf(out, "%d of %d scenarios failed\n", failed, len(scenarios))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
