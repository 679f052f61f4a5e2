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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v) failed: %v", args, err)
	}
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if want := 8; c.DonationDepth != want {
		t.Errorf("DonationDepth=%v, want: %v", c.DonationDepth, want)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlags(t, "--debug", "--log-format=json", "--donation-depth=3", "--parallel=1"))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Debug:         true,
		LogFormat:     "json",
		DonationDepth: 3,
		Parallel:      1,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := c.KernelOptions().DonationDepth; got != 3 {
		t.Errorf("KernelOptions().DonationDepth=%d, want: 3", got)
	}
	if diff := cmp.Diff([]string{"--debug=true", "--log-format=json", "--donation-depth=3", "--parallel=1"}, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidFlags(t *testing.T) {
	for _, tc := range []struct {
		args  []string
		error string
	}{
		{
			args:  []string{"--log-format=xml"},
			error: "invalid log format",
		},
		{
			args:  []string{"--donation-depth=0"},
			error: "donation-depth",
		},
		{
			args:  []string{"--parallel=0"},
			error: "parallel",
		},
	} {
		t.Run(tc.args[0], func(t *testing.T) {
			_, err := NewFromFlags(newFlags(t, tc.args...))
			if err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("NewFromFlags() wrong error: got %v, want %q", err, tc.error)
			}
		})
	}
}

func writeFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "synchtrace.toml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestApplyFile(t *testing.T) {
	path := writeFile(t, `
debug = true
log-format = "json"
donation-depth = 5
`)
	testFlags := newFlags(t, "--config="+path, "--log-format=json-k8s")
	if err := ApplyFile(testFlags); err != nil {
		t.Fatalf("ApplyFile failed: %v", err)
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug {
		t.Errorf("Debug=false, want: true")
	}
	// Command line wins over the file.
	if want := "json-k8s"; c.LogFormat != want {
		t.Errorf("LogFormat=%v, want: %v", c.LogFormat, want)
	}
	if want := 5; c.DonationDepth != want {
		t.Errorf("DonationDepth=%v, want: %v", c.DonationDepth, want)
	}
}

func TestApplyFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		data  string
		error string
	}{
		{
			name:  "unknown",
			data:  "color = true\n",
			error: `unknown flag "color"`,
		},
		{
			name:  "recursive",
			data:  "config = \"other.toml\"\n",
			error: `unknown flag "config"`,
		},
		{
			name:  "bad value",
			data:  "parallel = \"many\"\n",
			error: "parallel=many",
		},
		{
			name:  "syntax",
			data:  "debug = \n",
			error: "error reading config file",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlags(t, "--config="+writeFile(t, tc.data))
			err := ApplyFile(testFlags)
			if err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("ApplyFile() wrong error: got %v, want %q", err, tc.error)
			}
		})
	}
}
