// Package store remembers which posting URLs have already been ingested.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/jobmatch/internal/model"
)

var _ model.SeenStore = (*SQLiteStore)(nil)

// SQLiteStore tracks seen posting URLs in a SQLite database. It may share
// the database file with the queue.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// seen_urls table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening seen db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging seen db: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy_timeout: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS seen_urls (
		url     TEXT PRIMARY KEY,
		seen_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating seen_urls table: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// HasSeen reports whether url has been recorded.
func (s *SQLiteStore) HasSeen(url string) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM seen_urls WHERE url = ?", url).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking seen status for %s: %w", url, err)
	}
	return true, nil
}

// MarkSeen records url. Marking an already seen URL keeps its first timestamp.
func (s *SQLiteStore) MarkSeen(url string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO seen_urls (url, seen_at) VALUES (?, ?)", url, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("marking %s as seen: %w", url, err)
	}
	return nil
}

// Cleanup forgets URLs first seen more than olderThan ago, so a posting that
// is reopened later is ingested again.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	cutoff := s.now().Add(-olderThan).UnixNano()
	if _, err := s.db.Exec("DELETE FROM seen_urls WHERE seen_at < ?", cutoff); err != nil {
		return fmt.Errorf("cleaning up seen urls older than %v: %w", olderThan, err)
	}
	return nil
}

// Count returns the number of remembered URLs.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM seen_urls").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting seen urls: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
