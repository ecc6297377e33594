// Package cachestore persists raw HTTP response bodies across runs so
// re-harvesting an unchanged session costs no network traffic. It is an
// efficiency layer only: its absence changes cost, never output.
package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS http_cache (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
);
`

type Store struct {
	db *sql.DB
}

// New wraps an already-open database, running migrations if needed.
func New(database *sql.DB) (*Store, error) {
	_, err := database.Exec(schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: database}, nil
}

// Open opens (or creates) a cache database at the given path. ":memory:"
// yields a process-lifetime cache, used by tests.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return New(database)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached body for the key, reporting whether it existed.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(
		ctx, `SELECT body FROM http_cache WHERE key = ?`, key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Put stores a response body, replacing any previous entry for the key.
// Entries never expire on their own; clearing stale data is an out of
// band operation.
func (s *Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO http_cache (key, body, fetched_at) VALUES (?, ?, ?)`,
		key, body, time.Now().Unix(),
	)
	return err
}

// Count reports the number of cached responses.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM http_cache`).Scan(&n)
	return n, err
}
