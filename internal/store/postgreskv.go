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
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	applog "goslides/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresKV keeps values in the goslides_kv table. Values must be JSON.
type PostgresKV struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPostgres connects through the pgx stdlib driver and applies pending
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresKV, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN is required (set GSL_PG_DSN or store it in the keychain)")
	}
	l := applog.WithComponent("store").With(slog.String("backend", "postgres"))
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db, l); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresKV{db: db, log: l}, nil
}

func applyMigrations(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		v, err := parseMigrationVersion(fname)
		if err != nil {
			return err
		}
		if applied[v] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
	}
	return nil
}

func parseMigrationVersion(name string) (int64, error) {
	base, _, _ := strings.Cut(path.Base(name), "_")
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

func (k *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := k.db.QueryRowContext(ctx, `SELECT value::text FROM goslides_kv WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return []byte(v), nil
}

func (k *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := k.db.ExecContext(ctx,
		`INSERT INTO goslides_kv(key, value, updated_at) VALUES($1, $2::jsonb, now())
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("postgres put %s: %w", key, err)
	}
	return nil
}

func (k *PostgresKV) Close() error { return k.db.Close() }
