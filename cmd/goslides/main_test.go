/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"goslides/internal/config"
	"goslides/internal/store"
)

func newCLI(st *store.Store, who string) (*cli, *bytes.Buffer) {
	cfg := config.Defaults()
	cfg.General.Identity = who
	cfg.Storage.PollIntervalMs = 10
	out := &bytes.Buffer{}
	return &cli{
		cfg:        cfg,
		st:         st,
		in:         strings.NewReader(""),
		out:        out,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		saveConfig: func(config.AppConfig) error { return nil },
	}, out
}

func mustRun(t *testing.T, c *cli, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	if err := c.dispatch(context.Background(), args); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestCreateAddAndShow(t *testing.T) {
	st := store.New(store.NewMemoryKV())
	alice, out := newCLI(st, "alice")

	id := strings.TrimSpace(mustRun(t, alice, out, "create", "Quarterly", "review"))
	if id == "" {
		t.Fatalf("create printed no id")
	}
	if got := mustRun(t, alice, out, "list"); !strings.Contains(got, "Quarterly review") || !strings.Contains(got, id) {
		t.Fatalf("list output:\n%s", got)
	}
	mustRun(t, alice, out, "add-slide", id)
	mustRun(t, alice, out, "add", id, "2", "text", "Hello")
	mustRun(t, alice, out, "add", id, "2", "rect")

	got := mustRun(t, alice, out, "show", id)
	for _, want := range []string{"alice (creator)", "1: empty", "2: 1 text, 1 rect"} {
		if !strings.Contains(got, want) {
			t.Fatalf("show output lacks %q:\n%s", want, got)
		}
	}

	exp := mustRun(t, alice, out, "export", id, t.TempDir())
	if !strings.Contains(exp, "Wrote 2 pages") {
		t.Fatalf("export output: %s", exp)
	}
}

func TestViewerCannotEditUntilPromoted(t *testing.T) {
	st := store.New(store.NewMemoryKV())
	alice, aout := newCLI(st, "alice")
	bob, bout := newCLI(st, "bob")

	id := strings.TrimSpace(mustRun(t, alice, aout, "create"))
	if got := mustRun(t, bob, bout, "join", id); !strings.Contains(got, "as viewer") {
		t.Fatalf("join output: %s", got)
	}
	if err := bob.dispatch(context.Background(), []string{"add", id, "1", "rect"}); err == nil {
		t.Fatalf("viewer add should fail")
	}
	if got := mustRun(t, bob, bout, "title", id, "Mine"); !strings.Contains(got, "No change (you are viewer)") {
		t.Fatalf("viewer rename output: %s", got)
	}

	mustRun(t, alice, aout, "role", id, "bob", "editor")
	mustRun(t, bob, bout, "add", id, "1", "circle")
	if got := mustRun(t, bob, bout, "show", id); !strings.Contains(got, "1 circle") || !strings.Contains(got, "bob (editor)") {
		t.Fatalf("show after promotion:\n%s", got)
	}
	if err := bob.dispatch(context.Background(), []string{"delete", id}); err == nil {
		t.Fatalf("editor delete should fail")
	}
	mustRun(t, alice, aout, "delete", id)
	if got := mustRun(t, alice, aout, "list"); strings.Contains(got, id) {
		t.Fatalf("deleted deck still listed")
	}
}

func TestPresentSteps(t *testing.T) {
	st := store.New(store.NewMemoryKV())
	alice, out := newCLI(st, "alice")
	id := strings.TrimSpace(mustRun(t, alice, out, "create"))
	mustRun(t, alice, out, "add-slide", id)
	mustRun(t, alice, out, "add", id, "2", "text", "Closing words")

	alice.in = strings.NewReader("n\nn\nx\np\nq\n")
	got := mustRun(t, alice, out, "present", id)
	for _, want := range []string{"[1/2] empty", "[2/2] 1 text", "Closing words", "n=next"} {
		if !strings.Contains(got, want) {
			t.Fatalf("present output lacks %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "[2/2]") != 2 {
		t.Fatalf("next on the last slide should stay there:\n%s", got)
	}
}

func TestRunExitCodes(t *testing.T) {
	st := store.New(store.NewMemoryKV())
	c, out := newCLI(st, "alice")
	if code := run(context.Background(), c, []string{"bogus"}, t.TempDir()); code != 2 {
		t.Fatalf("unknown command exit %d", code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Fatalf("usage not printed")
	}
	if code := run(context.Background(), c, []string{"show", "missing"}, t.TempDir()); code != 1 {
		t.Fatalf("missing presentation exit %d", code)
	}
	if code := run(context.Background(), c, []string{"remove-slide", "x", "0"}, t.TempDir()); code != 2 {
		t.Fatalf("slide 0 exit %d", code)
	}
}

func TestWhoami(t *testing.T) {
	st := store.New(store.NewMemoryKV())
	c, out := newCLI(st, "")
	var saved config.AppConfig
	c.saveConfig = func(cfg config.AppConfig) error { saved = cfg; return nil }
	if err := c.dispatch(context.Background(), []string{"create"}); err == nil {
		t.Fatalf("create without identity should fail")
	}
	mustRun(t, c, out, "whoami", "Ada", "Lovelace")
	if saved.General.Identity != "Ada Lovelace" {
		t.Fatalf("saved identity %q", saved.General.Identity)
	}
	if got := mustRun(t, c, out, "whoami"); strings.TrimSpace(got) != "Ada Lovelace" {
		t.Fatalf("whoami = %q", got)
	}
}
