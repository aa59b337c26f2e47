package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the set in memory and mirrors it to a SQLite table.
// Unlike the JSON cache, the database file is created when missing.
type SQLiteStore struct {
	db *sql.DB

	mu     sync.RWMutex
	events map[string]bool
}

// OpenSQLite opens (or creates) the database at path and loads every key.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		events: make(map[string]bool),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS seen_events (
		key TEXT PRIMARY KEY,
		first_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT key FROM seen_events`)
	if err != nil {
		return fmt.Errorf("loading seen events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("scanning seen event: %w", err)
		}
		s.events[key] = true
	}
	return rows.Err()
}

// Has reports whether key has been announced.
func (s *SQLiteStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[key]
}

// Add marks key as announced and inserts it. Adding a known key is a no-op.
func (s *SQLiteStore) Add(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events[key] {
		return nil
	}
	s.events[key] = true

	if _, err := s.db.Exec(`INSERT OR IGNORE INTO seen_events (key) VALUES (?)`, key); err != nil {
		return fmt.Errorf("inserting seen event: %w", err)
	}
	return nil
}

// Keys returns the announced keys sorted alphabetically.
func (s *SQLiteStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.events))
	for k := range s.events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of announced keys.
func (s *SQLiteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
