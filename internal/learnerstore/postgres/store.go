// Package postgres implements the authoritative learner record store on
// PostgreSQL. Each learner owns one row whose jsonb document is merged at
// key level on every save, so concurrent writers touching different keys
// never clobber each other.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS learner_records (
	learner_id TEXT PRIMARY KEY,
	doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store is a [learnerstore.Remote] backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and ensures the schema
// exists. The pool is owned by the returned Store; call Close to release it.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Save upserts a single key into the learner's document. The jsonb
// concatenation keeps every other key of the row intact.
func (s *Store) Save(ctx context.Context, learnerID, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learner_records (learner_id, doc)
		VALUES ($1, jsonb_build_object($2::text, $3::jsonb))
		ON CONFLICT (learner_id) DO UPDATE
		SET doc = learner_records.doc || excluded.doc,
		    updated_at = now()`,
		learnerID, key, value)
	if err != nil {
		return fmt.Errorf("postgres: save %q for %q: %w", key, learnerID, err)
	}
	return nil
}

// Load returns the raw json value stored under key, or
// [learnerstore.ErrNotFound] when the learner or the key is absent.
func (s *Store) Load(ctx context.Context, learnerID, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc -> $2::text
		FROM learner_records
		WHERE learner_id = $1`,
		learnerID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, learnerstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %q for %q: %w", key, learnerID, err)
	}
	if value == nil {
		// Row exists but this key was never written.
		return nil, learnerstore.ErrNotFound
	}
	return value, nil
}

// Ping reports connectivity for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
