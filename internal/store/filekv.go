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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	applog "goslides/internal/log"
)

const (
	BackupsDirName = "backups"
	// DefaultMaxBackups bounds the timestamped copies kept per key.
	DefaultMaxBackups = 10
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FileKV stores each key as a JSON file under Root. Writes go to a temp file
// that is renamed over the target, after the previous value was copied to a
// timestamped backup. An unreadable current file falls back to the latest
// backup.
type FileKV struct {
	Root       string
	MaxBackups int

	mu  sync.Mutex
	log *slog.Logger
}

// NewFileKV creates root and its backups folder.
func NewFileKV(root string) (*FileKV, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileKV{
		Root:       root,
		MaxBackups: DefaultMaxBackups,
		log:        applog.WithComponent("store").With(slog.String("backend", "file"), slog.String("root", root)),
	}, nil
}

func (k *FileKV) path(key string) string { return filepath.Join(k.Root, key+".json") }

func (k *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey.MatchString(key) {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	b, err := os.ReadFile(k.path(key))
	switch {
	case err == nil && json.Valid(b):
		return b, nil
	case err == nil:
		err = errors.New("invalid JSON")
	case errors.Is(err, fs.ErrNotExist):
		if _, berr := k.latestBackup(key); berr != nil {
			return nil, ErrNotFound
		}
	}
	bb, berr := k.readLatestBackup(key)
	if berr != nil {
		return nil, fmt.Errorf("read %s: %w; backup attempt: %v", key, err, berr)
	}
	k.log.Warn("current value unreadable, using latest backup", slog.String("key", key), slog.Any("err", err))
	return bb, nil
}

func (k *FileKV) Put(ctx context.Context, key string, value []byte) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	if !json.Valid(value) {
		return fmt.Errorf("put %s: value is not valid JSON", key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	bdir := filepath.Join(k.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	target := k.path(key)
	if _, statErr := os.Stat(target); statErr == nil {
		stamp := time.Now().UTC().Format("20060102-150405.000000000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.json.%s.bak", key, stamp))
		if cerr := copyFile(target, bpath); cerr != nil {
			return fmt.Errorf("backup current value: %w", cerr)
		}
		k.pruneBackups(key)
	}

	temp := filepath.Join(k.Root, fmt.Sprintf(".%s.tmp-%d-%d", key, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, value); werr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", werr)
	}
	// Windows refuses to rename over an existing file
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if rerr := os.Rename(temp, target); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", key, rerr)
	}
	return nil
}

func (k *FileKV) Close() error { return nil }

func (k *FileKV) backups(key string) ([]string, error) {
	bdir := filepath.Join(k.Root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	prefix := key + ".json."
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

func (k *FileKV) latestBackup(key string) (string, error) {
	list, err := k.backups(key)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", errors.New("no backups found")
	}
	return list[len(list)-1], nil
}

// readLatestBackup returns the newest backup that holds valid JSON.
func (k *FileKV) readLatestBackup(key string) ([]byte, error) {
	list, err := k.backups(key)
	if err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		b, err := os.ReadFile(list[i])
		if err == nil && json.Valid(b) {
			return b, nil
		}
	}
	return nil, errors.New("no readable backup")
}

func (k *FileKV) pruneBackups(key string) {
	limit := k.MaxBackups
	if limit <= 0 {
		return
	}
	list, err := k.backups(key)
	if err != nil || len(list) <= limit {
		return
	}
	for _, p := range list[:len(list)-limit] {
		if err := os.Remove(p); err != nil {
			k.log.Debug("prune backup failed", slog.String("path", p), slog.Any("err", err))
		}
	}
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
