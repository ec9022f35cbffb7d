package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/welkome/identity/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "welkome:"

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "welkome:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() error {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
	return nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).AsBytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Set implements storage.Store. TTLs are rounded up to whole seconds.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := storage.ValidateEntry(key, value); err != nil {
		return err
	}

	var execErr error
	if ttl > 0 {
		execErr = s.client.Do(ctx, s.client.B().Set().Key(s.key(key)).Value(string(value)).Ex(roundUpToSecond(ttl)).Build()).Error()
	} else {
		execErr = s.client.Do(ctx, s.client.B().Set().Key(s.key(key)).Value(string(value)).Build()).Error()
	}
	if execErr != nil {
		return fmt.Errorf("failed to set %s: %w", key, execErr)
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

	if err := s.client.Do(ctx, s.client.B().Del().Key(prefixed...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Keys implements storage.Store using SCAN, so large keyspaces are never
// blocked by KEYS.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := s.key(escapeGlob(prefix)) + "*"

	// SCAN can return duplicates across iterations
	seen := make(map[string]struct{})
	keys := make([]string, 0)

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, full := range result.Elements {
			if _, ok := seen[full]; ok {
				continue
			}
			seen[full] = struct{}{}
			keys = append(keys, strings.TrimPrefix(full, s.prefix))
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

func roundUpToSecond(d time.Duration) time.Duration {
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	return d
}

// escapeGlob escapes the characters SCAN MATCH treats specially.
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
