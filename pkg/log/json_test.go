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
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// Tests that Level can marshal/unmarshal properly.
func TestLevelMarshal(t *testing.T) {
	lvs := []Level{Warning, Info, Debug}
	for _, lv := range lvs {
		bs, err := lv.MarshalJSON()
		if err != nil {
			t.Errorf("error marshaling %v: %v", lv, err)
		}
		var lv2 Level
		if err := lv2.UnmarshalJSON(bs); err != nil {
			t.Errorf("error unmarshaling %v: %v", bs, err)
		}
		if lv != lv2 {
			t.Errorf("marshal/unmarshal level got %v wanted %v", lv2, lv)
		}
	}
}

// Test that integers can be properly unmarshaled.
func TestUnmarshalFromInt(t *testing.T) {
	tcs := []struct {
		i    int
		want Level
	}{
		{0, Warning},
		{1, Info},
		{2, Debug},
	}

	for _, tc := range tcs {
		j, err := json.Marshal(tc.i)
		if err != nil {
			t.Errorf("error marshaling %v: %v", tc.i, err)
		}
		var lv Level
		if err := lv.UnmarshalJSON(j); err != nil {
			t.Errorf("error unmarshaling %v: %v", j, err)
		}
		if lv != tc.want {
			t.Errorf("marshal/unmarshal %v got %v want %v", tc.i, lv, tc.want)
		}
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	e.Emit(0, Info, ts, "thread %d blocked", 3)

	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
	var got jsonLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", tw.lines[0], err)
	}
	if got.Level != Info {
		t.Errorf("level = %v, want %v", got.Level, Info)
	}
	if !got.Time.Equal(ts) {
		t.Errorf("time = %v, want %v", got.Time, ts)
	}
	if !strings.HasPrefix(got.Msg, "json_test.go:") || !strings.HasSuffix(got.Msg, "] thread 3 blocked") {
		t.Errorf("msg = %q, want caller-prefixed message", got.Msg)
	}
}

func TestK8sJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := K8sJSONEmitter{&Writer{Next: tw}}
	e.Emit(0, Debug, time.Now(), "switch")

	var got k8sJSONLog
	if err := json.Unmarshal([]byte(tw.lines[0]), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", tw.lines[0], err)
	}
	if got.Level != Debug || !strings.HasSuffix(got.Log, "] switch") {
		t.Errorf("got %+v, want debug level and message \"switch\"", got)
	}
}
