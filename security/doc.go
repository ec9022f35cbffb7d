// Package security collects the protective building blocks shared by the
// client and the resource server: encryption of cached token secrets,
// per-caller rate limiting, audit logging with hashed user identifiers,
// request ids, response security headers and token expiry checks.
//
// # Token encryption
//
// Cached access, refresh and ID tokens are sealed with AES-256-GCM before they
// reach a storage backend. Keys come from GenerateKey, a base64 string
// (KeyFromBase64) or a passphrase (KeyFromPassphrase, scrypt). An Encryptor
// built from an empty key is disabled and stores values as-is, which is only
// appropriate for the in-memory backend.
//
//	key, err := security.KeyFromPassphrase(os.Getenv("CACHE_PASSPHRASE"), clientID)
//	enc, err := security.NewEncryptor(key)
//
// # Rate limiting
//
// RateLimiter keeps one token bucket per client IP with LRU eviction once
// DefaultMaxLimiters identifiers are tracked. Its Middleware answers 429.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//	router.Use(limiter.Middleware(false, 0, auditor))
package security
