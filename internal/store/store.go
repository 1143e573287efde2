// Package store provides SQLite persistence for the phonebook and the message log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// TimeFormat is the fixed-width RFC3339 format used for timestamps.
// Using fixed width ensures lexicographic ordering matches chronological ordering.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// lookupCacheSize bounds the number of cached phonebook lookups per direction.
const lookupCacheSize = 512

// Store wraps a SQLite database connection.
type Store struct {
	db *sql.DB

	// numbers caches nickname -> number, nicknames caches number -> nickname.
	// Only positive results are cached; deletions evict both directions.
	numbers   *lru.Cache[string, string]
	nicknames *lru.Cache[string, string]
}

// Open opens a SQLite database with WAL mode and busy_timeout and runs migrations.
func Open(path string) (*Store, error) {
	// URL-escape the path to handle special characters (?, #, spaces, etc.)
	escapedPath := url.PathEscape(path)

	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", escapedPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// The event core is the only writer; a couple of extra connections keep
	// start-up maintenance from blocking on it.
	db.SetMaxOpenConns(4)

	store, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// New wraps an already opened database without running migrations.
func New(db *sql.DB) (*Store, error) {
	numbers, err := lru.New[string, string](lookupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	nicknames, err := lru.New[string, string](lookupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Store{db: db, numbers: numbers, nicknames: nicknames}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// journalMode returns the current journal mode (for testing).
func (s *Store) journalMode() (string, error) {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
