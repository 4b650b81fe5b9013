// Package bookmark persists per-source playback positions — the same
// "remember where I left off" concern a browser keeps across a
// media element's sessions — distinct from the engine's explicit
// non-goal of caching downloaded audio bytes to disk: this package
// never touches audio data, only a URL/path and a timestamp.
//
// Schema and connection handling are adapted from the teacher's
// amp/internal/storage (modernc.org/sqlite, WAL, busy_timeout), pared
// down to the one table this engine needs.
package bookmark

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Bookmark is a saved playback position for one source.
type Bookmark struct {
	Source    string
	Position  time.Duration
	Duration  time.Duration
	UpdatedAt time.Time
}

// Store is a sqlite-backed bookmark table. A Store is safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	debug  bool
}

// Open creates (if needed) and opens the sqlite database at path,
// applying the same pragmas the teacher's storage.Database uses for a
// single-writer, low-latency local database.
func Open(path string, debug bool) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bookmark: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("bookmark: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("bookmark: pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("bookmark: create table: %w", err)
	}

	return &Store{db: db, debug: debug}, nil
}

const createTable = `
CREATE TABLE IF NOT EXISTS bookmarks (
	source     TEXT PRIMARY KEY,
	position_ms INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("bookmark: store is closed")
	}
	return nil
}

// Save upserts the bookmark for source.
func (s *Store) Save(ctx context.Context, source string, position, duration time.Duration) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (source, position_ms, duration_ms, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			position_ms = excluded.position_ms,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`, source, position.Milliseconds(), duration.Milliseconds(), time.Now())
	if err != nil {
		return fmt.Errorf("bookmark: save %s: %w", source, err)
	}
	if s.debug {
		log.Printf("[BOOKMARK] saved %s at %v", source, position)
	}
	return nil
}

// Get returns the saved bookmark for source, or (Bookmark{}, false, nil)
// if none exists.
func (s *Store) Get(ctx context.Context, source string) (Bookmark, bool, error) {
	if err := s.checkClosed(); err != nil {
		return Bookmark{}, false, err
	}

	var posMS, durMS int64
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT position_ms, duration_ms, updated_at FROM bookmarks WHERE source = ?", source,
	).Scan(&posMS, &durMS, &updatedAt)
	if err == sql.ErrNoRows {
		return Bookmark{}, false, nil
	}
	if err != nil {
		return Bookmark{}, false, fmt.Errorf("bookmark: get %s: %w", source, err)
	}

	return Bookmark{
		Source:    source,
		Position:  time.Duration(posMS) * time.Millisecond,
		Duration:  time.Duration(durMS) * time.Millisecond,
		UpdatedAt: updatedAt,
	}, true, nil
}

// Delete removes the bookmark for source, if any.
func (s *Store) Delete(ctx context.Context, source string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE source = ?", source)
	if err != nil {
		return fmt.Errorf("bookmark: delete %s: %w", source, err)
	}
	return nil
}

// List returns every stored bookmark, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Bookmark, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT source, position_ms, duration_ms, updated_at FROM bookmarks ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("bookmark: list: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var posMS, durMS int64
		if err := rows.Scan(&b.Source, &posMS, &durMS, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("bookmark: scan: %w", err)
		}
		b.Position = time.Duration(posMS) * time.Millisecond
		b.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close closes the underlying database. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
