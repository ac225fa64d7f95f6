// Package store persists capture runs in SQLite and answers temporal
// queries over the accumulated history.
package store

import (
	"database/sql"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// Store handles all database operations.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the SQLite file at dbPath, creating the
// parent directory and the schema as needed. ":memory:" is accepted for
// an ephemeral database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
//
// Timestamps are stored as UTC Unix nanoseconds so sub-second capture
// instants compare exactly. The UNIQUE constraints are the store's only
// concurrency control: two interleaving captures for the same user may
// both succeed, but never under the same instant, and no snapshot row
// can exist twice for one instant.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		url  TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS capture_runs (
		captured_at INTEGER NOT NULL,
		user_url    TEXT NOT NULL,
		UNIQUE (captured_at, user_url)
	);

	CREATE TABLE IF NOT EXISTS item_snapshots (
		captured_at    INTEGER NOT NULL,
		item_url       TEXT NOT NULL REFERENCES items(url),
		name           TEXT NOT NULL,
		favourites     INTEGER NOT NULL CHECK (favourites >= 0),
		total_comments INTEGER NOT NULL CHECK (total_comments >= 0),
		UNIQUE (captured_at, item_url)
	);

	CREATE TABLE IF NOT EXISTS comment_snapshots (
		captured_at  INTEGER NOT NULL,
		item_url     TEXT NOT NULL REFERENCES items(url),
		comment_id   TEXT NOT NULL,
		author       TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		message_text TEXT NOT NULL,
		UNIQUE (captured_at, item_url, comment_id)
	);

	CREATE INDEX IF NOT EXISTS idx_capture_runs_user ON capture_runs(user_url, captured_at);
	CREATE INDEX IF NOT EXISTS idx_item_snapshots_ts ON item_snapshots(captured_at);
	CREATE INDEX IF NOT EXISTS idx_comment_snapshots_ts ON comment_snapshots(captured_at, item_url);
	`

	_, err := s.db.Exec(schema)
	return err
}

// builder returns the squirrel statement builder for read queries.
// SQLite uses "?" placeholders, squirrel's default.
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}
