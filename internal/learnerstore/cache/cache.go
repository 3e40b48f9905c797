// Package cache is the device-local fallback store, a single-table SQLite
// database. It keeps a learner practising when the remote store is
// unreachable and is the only store anonymous learners get.
package cache

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
CREATE TABLE IF NOT EXISTS learner_cache (
	scope      TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is a [learnerstore.Cache] backed by a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent directories
// as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	// The modernc driver serializes per connection; a single connection
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores value under scope, replacing any previous value.
func (s *Store) Put(ctx context.Context, scope string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learner_cache (scope, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (scope) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: put %q: %w", scope, err)
	}
	return nil
}

// Get returns the value stored under scope. A miss is reported through ok,
// not an error.
func (s *Store) Get(ctx context.Context, scope string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM learner_cache WHERE scope = ?`, scope).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", scope, err)
	}
	return value, true, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
