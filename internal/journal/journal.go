/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package journal persists interaction sessions: the normalized input events
// fed to an engine and the notifications it emitted. A recorded session can
// be read back and replayed. SQLite (pure Go) is the default store; Postgres
// is reached through pgx.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	applog "annotator/internal/log"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ErrUnknownDriver is returned by Open for a driver name it cannot map.
var ErrUnknownDriver = errors.New("journal: unknown driver")

// Dialect is the SQL flavour of the underlying store.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Config selects the store.
type Config struct {
	// Driver is "sqlite" (default) or "postgres"/"pgx".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for SQLite or a connection URL for Postgres.
	DSN string `yaml:"dsn" json:"dsn"`
	// User and Password are merged into a Postgres URL that lacks them.
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"-" json:"-"`
}

// ParseDialect maps a driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx", "pg":
		return Postgres, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownDriver, driver)
}

// Journal is an open session store. It is safe for concurrent use.
type Journal struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// Open connects to the store described by cfg and brings its schema up to
// date.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("journal: dsn is required")
	}
	l := applog.WithComponent("journal").With(slog.String("op", "open"), slog.String("driver", string(d)))

	var db *sql.DB
	switch d {
	case SQLite:
		dsn := cfg.DSN
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + filepathToSlash(dsn)
		}
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
	case Postgres:
		db, err = sql.Open("pgx", withCredentials(cfg.DSN, cfg.User, cfg.Password))
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, fmt.Errorf("journal: open %s: %w", d, err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if d == SQLite {
		if _, err := db.ExecContext(pctx, "PRAGMA journal_mode=WAL;"); err != nil {
			l.Warn("enable WAL failed", slog.Any("err", err))
		}
	}
	j := &Journal{db: db, dialect: d, log: applog.WithComponent("journal")}
	if err := j.migrate(pctx); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("journal ready")
	return j, nil
}

// Dialect reports the SQL flavour in use.
func (j *Journal) Dialect() Dialect { return j.dialect }

// Close releases the connection pool.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`
	if j.dialect == Postgres {
		ddl = strings.Replace(ddl, "INTEGER", "BIGINT", 1)
	}
	if _, err := j.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("journal: ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := j.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("journal: read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	dir := path.Join("migrations", string(j.dialect))
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("journal: read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		v, err := parseVersion(name)
		if err != nil {
			return err
		}
		if applied[v] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return err
		}
		tx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("journal: begin migration %d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("journal: apply %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, j.rebind(`INSERT INTO schema_migrations(version, name, applied_at) VALUES(?, ?, ?)`),
			v, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("journal: record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("journal: commit %s: %w", name, err)
		}
		j.log.Debug("migration applied", slog.String("name", name))
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (j *Journal) SchemaVersion(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("journal: schema version: %w", err)
	}
	return v.Int64, nil
}

// rebind turns ? placeholders into $n for Postgres.
func (j *Journal) rebind(q string) string {
	if j.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseVersion(name string) (int64, error) {
	prefix, _, _ := strings.Cut(path.Base(name), "_")
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse version from %s: %w", name, err)
	}
	return v, nil
}

func filepathToSlash(p string) string { return strings.ReplaceAll(p, `\`, "/") }

// withCredentials adds user and password to a Postgres DSN that carries
// none. Both URL and key=value forms are understood.
func withCredentials(dsn, user, password string) string {
	if user == "" {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil || u.User != nil {
			return dsn
		}
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
		return u.String()
	}
	if strings.Contains(dsn, "user=") {
		return dsn
	}
	dsn += " user=" + user
	if password != "" {
		dsn += " password=" + password
	}
	return strings.TrimSpace(dsn)
}
