/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeSnap struct {
	data []byte
	err  error
}

func (f fakeSnap) Snapshot(context.Context) ([]byte, error) { return f.data, f.err }

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path, err := writeReport(dir, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("report written to %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "GoSlides Crash Report") || !strings.Contains(s, "Panic: boom") || !strings.Contains(s, "stacktrace") {
		t.Fatalf("unexpected report:\n%s", s)
	}
}

func TestRecoverWritesReportAndAutosave(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	func() {
		defer Recover(dir, fakeSnap{data: []byte(`[{"id":"p1"}]`)})
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	reports, _ := filepath.Glob(filepath.Join(dir, "crash-*.log"))
	saves, _ := filepath.Glob(filepath.Join(dir, "crash-autosave-*.json"))
	if len(reports) != 1 || len(saves) != 1 {
		t.Fatalf("reports=%v autosaves=%v", reports, saves)
	}
	b, _ := os.ReadFile(saves[0])
	if string(b) != `[{"id":"p1"}]` {
		t.Fatalf("autosave = %s", b)
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()
	func() {
		defer Recover(t.TempDir(), nil)
	}()
	if called {
		t.Fatalf("exit called without panic")
	}
}

func TestAutosaveSnapshotError(t *testing.T) {
	if _, err := autosave(t.TempDir(), fakeSnap{err: errors.New("db gone")}); err == nil {
		t.Fatalf("want error")
	}
}
