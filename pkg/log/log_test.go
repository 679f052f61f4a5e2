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

package log

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	want := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingNewline(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("no newline")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}
	want := []string{"no newline", "\n"}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("Writer lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLevelFiltering(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warningf("shown %d", 3)
	l.SetLevel(Debug)
	l.Debugf("shown %d", 4)

	want := []string{"shown 2\n", "shown 3\n", "shown 4\n"}
	if diff := cmp.Diff(want, tw.lines); diff != "" {
		t.Errorf("logged lines mismatch (-want +got):\n%s", diff)
	}
}

func TestPrefixedLogger(t *testing.T) {
	tw := &testWriter{}
	l := PrefixedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, "[100%] ")
	l.Infof("value=%d", 7)
	if want := []string{"[100%] value=7\n"}; !cmp.Equal(want, tw.lines) {
		t.Errorf("got %q, want %q", tw.lines, want)
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 4, 13, 7, 9, 123456000, time.UTC)
	e.Emit(0, Warning, ts, "hello %s", "world")

	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
	line := tw.lines[0]
	if !strings.HasPrefix(line, "W0504 13:07:09.123456 ") {
		t.Errorf("line %q has wrong header", line)
	}
	if !strings.Contains(line, "log_test.go:") {
		t.Errorf("line %q does not name the caller", line)
	}
	if !strings.HasSuffix(line, "] hello world\n") {
		t.Errorf("line %q has wrong message", line)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := RateLimitedLogger(&BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 5; i++ {
		l.Warningf("chain %d", i)
	}
	if want := []string{"chain 0\n"}; !cmp.Equal(want, tw.lines) {
		t.Errorf("got %q, want %q", tw.lines, want)
	}
	rl := l.(*rateLimitedLogger)
	if got := rl.suppressed.Load(); got != 4 {
		t.Errorf("suppressed = %d, want 4", got)
	}
}
