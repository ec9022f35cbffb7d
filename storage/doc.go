// Package storage defines the key/value Store that backs the token cache.
//
// The cache package owns the record layout (accounts, access, refresh and ID
// tokens, the active account, pending interactions) and encrypts secrets
// before they reach a Store, so backends only deal in opaque bytes.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process map with background expiry, the default
//   - storage/file: a single JSON file that survives restarts
//   - storage/valkey: Valkey for shared, multi-process caches
//   - storage/redis: Redis via go-redis
package storage
