// Package valkey provides a Valkey storage backend for the token cache.
//
// Valkey is a high-performance key-value store that is wire-compatible with
// Redis. A shared Valkey instance lets several client processes (or several
// replicas of a confidential web client) see the same signed-in accounts
// and cached tokens.
//
// # Key Schema
//
// All keys use a configurable prefix (default "welkome:") to avoid conflicts
// with other applications sharing the same Valkey instance. The cache layer
// decides the rest of the key:
//
//	{prefix}account:{homeAccountID}            -> JSON(Account)
//	{prefix}accesstoken:{key}                  -> JSON(access token, secret encrypted)
//	{prefix}refreshtoken:{homeAccountID}:...   -> JSON(refresh token, secret encrypted)
//	{prefix}active                             -> homeAccountID
//	{prefix}pending:{state}                    -> JSON(pending interaction, with TTL)
//
// Entries with a TTL use native key expiry.
//
// # Usage
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "welkome:",
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	tokens := cache.New(store, cache.Options{})
//
// # Testing
//
// Tests connect to VALKEY_TEST_ADDR (default localhost:6379) and are skipped
// when no server is reachable.
package valkey
