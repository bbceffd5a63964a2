/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"goslides/internal/config"
)

func TestFileKVRoundTripAndBackups(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}
	if _, err := kv.Get(ctx, CollectionKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store: %v", err)
	}
	if err := kv.Put(ctx, CollectionKey, []byte(`[1]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := kv.Put(ctx, CollectionKey, []byte(`[1,2]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := kv.Get(ctx, CollectionKey)
	if err != nil || string(got) != `[1,2]` {
		t.Fatalf("Get = %s, %v", got, err)
	}
	list, _ := kv.backups(CollectionKey)
	if len(list) != 1 {
		t.Fatalf("want one backup of the previous value, got %v", list)
	}
	if err := kv.Put(ctx, CollectionKey, []byte(`{broken`)); err == nil {
		t.Fatalf("invalid JSON accepted")
	}
	if err := kv.Put(ctx, "../escape", []byte(`1`)); err == nil {
		t.Fatalf("path-like key accepted")
	}
}

func TestFileKVFallsBackToLatestBackup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	kv, _ := NewFileKV(root)
	_ = kv.Put(ctx, CollectionKey, []byte(`["old"]`))
	_ = kv.Put(ctx, CollectionKey, []byte(`["new"]`))
	if err := os.WriteFile(filepath.Join(root, CollectionKey+".json"), []byte("{corrupt"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	got, err := kv.Get(ctx, CollectionKey)
	if err != nil || string(got) != `["old"]` {
		t.Fatalf("fallback = %s, %v", got, err)
	}

	if err := os.Remove(filepath.Join(root, CollectionKey+".json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err = kv.Get(ctx, CollectionKey)
	if err != nil || string(got) != `["old"]` {
		t.Fatalf("missing current file should use backup: %s, %v", got, err)
	}
}

func TestFileKVPrunesBackups(t *testing.T) {
	ctx := context.Background()
	kv, _ := NewFileKV(t.TempDir())
	kv.MaxBackups = 2
	for _, v := range []string{`1`, `2`, `3`, `4`, `5`} {
		if err := kv.Put(ctx, "k", []byte(v)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	list, _ := kv.backups("k")
	if len(list) != 2 {
		t.Fatalf("want 2 backups, got %d", len(list))
	}
	b, _ := os.ReadFile(list[1])
	if string(b) != "4" {
		t.Fatalf("latest backup = %s", b)
	}
}

func TestStoreOverFileKV(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	kv, _ := NewFileKV(root)
	p, err := New(kv).Create(ctx, "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	reopened, _ := NewFileKV(root)
	got, err := New(reopened).Get(ctx, p.ID)
	if err != nil || got.Creator != "alice" {
		t.Fatalf("reopen: %+v %v", got, err)
	}
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		backend string
		want    string
	}{
		{"memory", "*store.MemoryKV"},
		{"file", "*store.FileKV"},
		{"", "*store.FileKV"},
		{"SQLite", "*store.SQLiteKV"},
	}
	for _, tc := range cases {
		kv, err := Open(ctx, config.StorageConfig{Backend: tc.backend, Path: t.TempDir()}, "")
		if err != nil {
			t.Fatalf("%q: %v", tc.backend, err)
		}
		if got := fmt.Sprintf("%T", kv); got != tc.want {
			t.Fatalf("%q opened %s", tc.backend, got)
		}
		_ = kv.Close()
	}
	if _, err := Open(ctx, config.StorageConfig{Backend: "etcd"}, ""); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	if _, err := Open(ctx, config.StorageConfig{Backend: "postgres"}, ""); err == nil {
		t.Fatalf("postgres without DSN accepted")
	}
}
