// Package memory provides an in-memory storage.Store.
//
// Entries live in a map guarded by a sync.RWMutex. A background goroutine
// sweeps expired entries at a configurable interval; expired entries are
// never returned even before the sweep runs. Nothing survives a restart, so
// clients that must keep their sign-in across runs should use storage/file
// or a shared backend instead.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Close()
//
//	tokens := cache.New(store, cache.Options{})
package memory
