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
	"slices"
	"strings"
	"sync"

	"goslides/internal/config"
)

// ErrNotFound is returned for unknown keys and unknown presentation ids.
var ErrNotFound = errors.New("not found")

// KV is the persistence medium: opaque values under string keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open builds the backend selected by cfg. dsn is only used by "postgres".
func Open(ctx context.Context, cfg config.StorageConfig, dsn string) (KV, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "memory" {
		return NewMemoryKV(), nil
	}
	if backend == "postgres" {
		return OpenPostgres(ctx, dsn)
	}
	root := cfg.Path
	if root == "" {
		d, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		root = filepath.Join(d, "store")
	}
	switch backend {
	case "", "file":
		return NewFileKV(root)
	case "sqlite":
		if filepath.Ext(root) == "" {
			if err := os.MkdirAll(root, 0o755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
			root = filepath.Join(root, SQLiteFileName)
		}
		return OpenSQLite(ctx, root)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// MemoryKV keeps values in a map. Values are copied on the way in and out.
type MemoryKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{m: map[string][]byte{}} }

func (k *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (k *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = slices.Clone(value)
	return nil
}

func (k *MemoryKV) Close() error { return nil }
