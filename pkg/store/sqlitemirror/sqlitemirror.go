// Package sqlitemirror implements the local mirror's
// [github.com/orgbook/prefsync/pkg/store.KV] contract on a single-file
// SQLite database. The mirror is scoped to the device, not to a session: it
// survives process restarts and holds the last known copy of every
// preference record, one JSON array value per (kind, owner) key.
//
// The driver is modernc.org/sqlite (pure Go, no cgo), so the mirror works
// anywhere the binary runs.
package sqlitemirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS mirror (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Mirror is a durable key-value store backed by one SQLite file.
type Mirror struct {
	db *sql.DB
}

// Open opens (creating if necessary) the mirror database at path. The
// parent directory is created when missing so first launch on a fresh
// device works without setup.
func Open(path string) (*Mirror, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create mirror directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure mirror database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create mirror schema: %w", err)
	}

	return &Mirror{db: db}, nil
}

// Get returns the value stored under key, or nil when the key is absent.
func (m *Mirror) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, "SELECT value FROM mirror WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mirror key %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (m *Mirror) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO mirror (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write mirror key %q: %w", key, err)
	}
	return nil
}

func (m *Mirror) Close() error {
	return m.db.Close()
}
