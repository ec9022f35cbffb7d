package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// MaxKeyLength is the maximum allowed length for a key.
	MaxKeyLength = 512

	// MaxValueSize is the maximum size of a stored value (64KB).
	MaxValueSize = 64 * 1024
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage: store is closed")
)

// Store is a goroutine-safe key/value store with optional per-key expiry.
// The token cache is layered on top of it; every backend serializes nothing
// itself and treats values as opaque bytes.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero or less means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Keys lists the keys that start with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the resources held by the store.
	Close() error
}

// ValidateKey rejects empty and oversized keys.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage: key cannot be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("storage: key exceeds maximum length of %d", MaxKeyLength)
	}
	return nil
}

// ValidateEntry validates a key and value before a write.
func ValidateEntry(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("storage: value for %q exceeds maximum size of %d bytes", key, MaxValueSize)
	}
	return nil
}
