// Package file provides a storage.Store persisted to a single JSON file.
//
// It plays the role browser local storage plays for a single-page app: the
// signed-in account and its tokens survive a restart of the client process.
// Every write rewrites the file through a temporary file and an atomic
// rename, so a crash never leaves a half-written cache behind. The file is
// created with 0600 permissions; token secrets inside it are additionally
// encrypted by the cache layer when an encryption key is configured.
//
// The store is safe for concurrent use within one process. Two processes
// sharing one file is not supported; use storage/valkey or storage/redis.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/welkome/identity/security"
	"github.com/welkome/identity/storage"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	// formatVersion is written into the file so future layouts can migrate.
	formatVersion = 1
)

type record struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type document struct {
	Version int               `json:"version"`
	Entries map[string]record `json:"entries"`
}

// Store is a file-backed storage.Store.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]record
	closed  bool

	clock  security.Clock
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Options configures a file store.
type Options struct {
	// Clock defaults to the system clock.
	Clock security.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Open loads the store at path, creating the parent directory if needed.
// A missing file is an empty store; a corrupt file is an error.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Store{
		path:    path,
		entries: make(map[string]record),
		clock:   security.ClockOrDefault(opts.Clock),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("Cache file does not exist yet", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	default:
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse cache file %s: %w", path, err)
		}
		if doc.Version != formatVersion {
			return nil, fmt.Errorf("unsupported cache file version %d", doc.Version)
		}
		if doc.Entries != nil {
			s.entries = doc.Entries
		}
		logger.Debug("Loaded cache file", "path", path, "entries", len(s.entries))
	}

	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) expired(r record, now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	r, ok := s.entries[key]
	if !ok || s.expired(r, s.clock.Now()) {
		return nil, storage.ErrNotFound
	}

	out := make([]byte, len(r.Value))
	copy(out, r.Value)
	return out, nil
}

// Set implements storage.Store.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := storage.ValidateEntry(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	r := record{Value: append([]byte(nil), value...)}
	if ttl > 0 {
		r.ExpiresAt = s.clock.Now().Add(ttl).UTC()
	}

	prev, existed := s.entries[key]
	s.entries[key] = r
	if err := s.flushLocked(); err != nil {
		if existed {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	changed := false
	for _, key := range keys {
		if _, ok := s.entries[key]; ok {
			delete(s.entries, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flushLocked()
}

// Keys implements storage.Store.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	now := s.clock.Now()
	keys := make([]string, 0)
	for key, r := range s.entries {
		if strings.HasPrefix(key, prefix) && !s.expired(r, now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close drops expired entries, writes the file a final time and rejects
// further use.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	now := s.clock.Now()
	for key, r := range s.entries {
		if s.expired(r, now) {
			delete(s.entries, key)
		}
	}

	err := s.flushLocked()
	s.closed = true
	return err
}

// flushLocked writes the current entries. The caller holds s.mu.
func (s *Store) flushLocked() error {
	data, err := json.Marshal(document{Version: formatVersion, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
