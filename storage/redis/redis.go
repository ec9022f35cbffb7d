// Package redis provides a Redis storage backend for the token cache using
// go-redis. It uses the same key layout as storage/valkey, so a deployment
// can move between the two servers without migrating data.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/welkome/identity/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Redis keys
	DefaultKeyPrefix = "welkome:"

	scanBatchSize           = 100
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Address is the Redis server address (required), e.g., "localhost:6379"
	Address string

	Password string
	DB       int

	// KeyPrefix is the prefix for all keys (default "welkome:")
	KeyPrefix string

	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Redis-backed storage.Store.
type Store struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:      cfg.Address,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("Connected to Redis storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	s.logger.Info("Redis storage connection closed")
	return nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Set implements storage.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := storage.ValidateEntry(key, value); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Keys implements storage.Store with a SCAN iterator.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.key(escapeGlob(prefix)) + "*"

	seen := make(map[string]struct{})
	keys := make([]string, 0)

	iter := s.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		if _, ok := seen[full]; ok {
			continue
		}
		seen[full] = struct{}{}
		keys = append(keys, strings.TrimPrefix(full, s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
