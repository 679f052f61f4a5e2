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
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/subcommands"

	"github.com/kthreads/kthreads/synchtrace/config"
)

const testdata = "../../pkg/scenario/testdata"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(testFlags)
	conf, err := config.NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

// execute parses args with c's flags and runs c.
func execute(t *testing.T, c subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("Parse(%v) failed: %v", args, err)
	}
	return c.Execute(context.Background(), f, testConfig(t))
}

func writeScenario(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	r := &Run{stdout: &out}
	if got := execute(t, r, filepath.Join(testdata, "donate.toml")); got != subcommands.ExitSuccess {
		t.Fatalf("Execute returned %v, want %v", got, subcommands.ExitSuccess)
	}
	want := strings.Join([]string{
		"== donate.toml",
		"a: acquired l",
		"a: priority 40",
		"b: acquired l",
		"b: priority 40",
		"a: priority 10",
		"",
	}, "\n")
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunTrace(t *testing.T) {
	var out bytes.Buffer
	r := &Run{stdout: &out}
	if got := execute(t, r, "--trace", filepath.Join(testdata, "donate.toml")); got != subcommands.ExitSuccess {
		t.Fatalf("Execute returned %v, want %v", got, subcommands.ExitSuccess)
	}
	for _, want := range []string{"  donate a(1) pri=40 peer=b", "  switch b(2) pri=40 peer=a", "b: acquired l"} {
		if !strings.Contains(out.String(), want+"\n") {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestRunKernelError(t *testing.T) {
	path := writeScenario(t, "stuck.toml", `
[[semaphores]]
name = "s"
[[threads]]
name = "main"
ops = ["down s"]
`)
	var out bytes.Buffer
	r := &Run{stdout: &out}
	if got := execute(t, r, path); got != subcommands.ExitFailure {
		t.Errorf("Execute returned %v, want %v", got, subcommands.ExitFailure)
	}
	if !strings.Contains(out.String(), "!! deadlock") {
		t.Errorf("output does not report the deadlock:\n%s", out.String())
	}
}

func TestCheck(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(testdata, "*"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	var out bytes.Buffer
	c := &Check{stdout: &out}
	if got := execute(t, c, files...); got != subcommands.ExitSuccess {
		t.Errorf("Execute returned %v, want %v:\n%s", got, subcommands.ExitSuccess, out.String())
	}
	if got := strings.Count(out.String(), "ok   "); got != len(files) {
		t.Errorf("%d scenarios passed, want %d:\n%s", got, len(files), out.String())
	}
}

func TestCheckMismatch(t *testing.T) {
	path := writeScenario(t, "wrong.yaml", `
expect: ["main: priority 1"]
threads:
  - name: main
    ops: [priority]
`)
	var out bytes.Buffer
	c := &Check{stdout: &out}
	if got := execute(t, c, path, filepath.Join(testdata, "donate.toml")); got != subcommands.ExitFailure {
		t.Errorf("Execute returned %v, want %v", got, subcommands.ExitFailure)
	}
	for _, want := range []string{"FAIL wrong.yaml", "main: priority 31", "ok   donate.toml", "1 of 2 scenarios failed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestUsage(t *testing.T) {
	for _, c := range []subcommands.Command{&Run{}, &Check{}} {
		f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		f.SetOutput(&bytes.Buffer{})
		c.SetFlags(f)
		if got := c.Execute(context.Background(), f, testConfig(t)); got != subcommands.ExitUsageError {
			t.Errorf("%s without files returned %v, want %v", c.Name(), got, subcommands.ExitUsageError)
		}
	}
}
