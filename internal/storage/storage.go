package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ErrNotFound is returned when the cache file does not exist.
var ErrNotFound = errors.New("event cache not found")

// Store is an append-only set of announced keys. Keys are never removed.
//
// Add records the key in memory first and then persists it; if persisting
// fails the key stays recorded in memory and the error is returned.
type Store interface {
	Has(key string) bool
	Add(key string) error
	Keys() []string
	Len() int
	Close() error
}

// Open opens the store at path with the named backend.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return OpenJSON(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", backend)
	}
}

// JSONStore keeps the set in memory and mirrors it to a JSON file.
type JSONStore struct {
	path string

	mu     sync.RWMutex
	events map[string]bool
}

// OpenJSON loads the cache at path. The file must exist and contain a JSON
// object; a missing file returns an error wrapping ErrNotFound.
func OpenJSON(path string) (*JSONStore, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading event cache: %w", err)
	}

	events := make(map[string]bool)
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parsing event cache %s: %w", path, err)
	}

	// Only present keys count; a hand-edited false entry is dropped.
	for k, v := range events {
		if !v {
			delete(events, k)
		}
	}

	return &JSONStore{
		path:   path,
		events: events,
	}, nil
}

// CreateJSON writes an empty cache at path unless a file already exists.
// It reports whether a file was created.
func CreateJSON(path string) (bool, error) {
	path, err := expandHome(path)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking event cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating data directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte("{}")); err != nil {
		return false, err
	}
	return true, nil
}

// Has reports whether key has been announced.
func (s *JSONStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[key]
}

// Add marks key as announced and rewrites the cache. Adding a known key is a no-op.
func (s *JSONStore) Add(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events[key] {
		return nil
	}
	s.events[key] = true

	return s.save()
}

// save writes the full set. Callers hold s.mu.
func (s *JSONStore) save() error {
	data, err := json.Marshal(s.events)
	if err != nil {
		return fmt.Errorf("encoding event cache: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Keys returns the announced keys sorted alphabetically.
func (s *JSONStore) Keys() []string {
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
func (s *JSONStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close is a no-op; every Add is already on disk.
func (s *JSONStore) Close() error {
	return nil
}

// writeFileAtomic replaces path with data via a synced temporary file in the
// same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary cache file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing event cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing event cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing event cache: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("setting cache permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing event cache: %w", err)
	}
	return nil
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
