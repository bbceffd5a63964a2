/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report plus an autosave of the
// presentation collection, then exits non-zero.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "goslides/internal/log"
	"goslides/internal/version"
)

// exitFn is swapped in tests so Recover does not end the process.
var exitFn = os.Exit

// Snapshotter yields the state worth saving when the process dies.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// Recover captures a panic, logs it with its stack, writes a report into dir
// (the temp dir when empty) and autosaves snap next to it.
//
// Usage: defer crash.Recover(dir, store)
func Recover(dir string, snap Snapshotter) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(dir, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if snap != nil {
		if path, err := autosave(dir, snap); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("path", path))
		}
	}
	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func reportDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func writeReport(dir string, panicVal any, stack []byte) (string, error) {
	path := filepath.Join(reportDir(dir), fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "GoSlides Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	return path, nil
}

func autosave(dir string, snap Snapshotter) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	b, err := snap.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	path := filepath.Join(reportDir(dir), fmt.Sprintf("crash-autosave-%s.json", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write autosave: %w", err)
	}
	return path, nil
}
