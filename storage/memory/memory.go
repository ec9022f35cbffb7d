package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/welkome/identity/security"
	"github.com/welkome/identity/storage"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is an in-memory storage.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool

	clock           security.Clock
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store with the default cleanup interval.
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, DefaultCleanupInterval is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		entries:         make(map[string]entry),
		clock:           security.SystemClock{},
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the time source. Tests use it to expire entries.
func (s *Store) SetClock(clock security.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = security.ClockOrDefault(clock)
}

// Get implements storage.Store.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	e, ok := s.entries[key]
	if !ok || e.expired(s.clock.Now()) {
		return nil, storage.ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
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

	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// Keys implements storage.Store.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	now := s.clock.Now()
	keys := make([]string, 0)
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) && !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Len returns the number of stored entries, including expired ones that
// have not been swept yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stop stops the background cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Close stops cleanup and drops every entry.
func (s *Store) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired entries and returns how many were removed.
func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	cleaned := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired cache entries", "count", cleaned)
	}
	return cleaned
}

