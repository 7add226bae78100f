// Package kvcache provides bounded, thread-safe key-value caches with
// least-recently-used eviction, plus an optional durability log that lets
// a cache rebuild its contents after a restart.
//
// Three cache types are provided:
//
//   - [Cache]: a generic LRU cache with fixed capacity
//   - [Sharded]: a sharded variant of Cache that reduces lock contention
//   - [Store]: a string cache backed by an append-only durability log
//
// All are safe for concurrent use and support eviction callbacks.
//
// # Basic Usage
//
// Create a cache and store values:
//
//	cache := kvcache.MustNew[string, int](100)
//	cache.Set("key", 42)
//	value, found := cache.Get("key")
//
// # Durable Store
//
// Create a store that records every mutation to an append-only log and
// recovers from it on startup:
//
//	store := kvcache.MustNewStore(
//	    kvcache.WithCapacity(100),
//	    kvcache.WithLog("cache.log"),
//	)
//	store.Recover() // replay whatever the log holds
//	store.Put("key", "value")
//
// Each record is flushed and synced before the mutating call returns, so
// a crash loses at most a torn trailing record, which recovery discards.
// When no log is configured the store behaves as a pure in-memory cache.
//
// # Memoization with GetOrSet
//
// Compute values on cache miss:
//
//	result, err := cache.GetOrSet("key", func() (int, error) {
//	    return expensiveComputation()
//	})
//
// # Eviction Callbacks
//
// Register a callback to be notified when entries are evicted:
//
//	cache.OnEvict(func(key string, value int) {
//	    fmt.Printf("evicted: %s=%d\n", key, value)
//	})
//
// Callbacks are invoked for capacity evictions, explicit removals and
// Clear, always after the internal lock is released.
//
// The package emits no log output by default; call [SetLogger] to observe
// durability warnings and replay diagnostics.
package kvcache
