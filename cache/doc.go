// Package cache provides the key-value contract, key construction and
// serialization used by the hot storage engine.
//
// # Overview
//
// This package exports three main interfaces and their default implementations:
//
//   - Store: get/set/delete of byte values plus add/remove/members of string sets
//   - KeyBuilder: builds deterministic keys from a type prefix, field names and values
//   - Codec: turns records into opaque blobs and back (msgpack by default)
//
// Stores are constructed from a Config and injected into whatever needs them.
// There is no package-level client:
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//
// # Key Layout
//
// Every key starts with the record type prefix:
//
//	<prefix>:pk:<pk>                  serialized record
//	<prefix>:pk:<pk>:indexes          set of index keys owned by the record
//	<prefix>:<f1>:<v1>:<f2>:<v2>      index key, resolves to a primary key value
//	<prefix>:all                      set of cached primary key values
//
// Index key fields are sorted by name, so the same field combination always
// produces the same key regardless of map iteration order:
//
//	kb := cache.NewDefaultKeyBuilder()
//	kb.IndexKey("testapp.phonenumber", map[string]any{"phone_number": "5309", "person": 1})
//	// testapp.phonenumber:person:1:phone_number:5309
//
// Values that contain the separator can make two different field combinations
// produce the same key. Keep unique field values free of ":" or accept the risk.
//
// # Backends
//
//   - memory: in-process store on top of sturdyc. Sets are copy-on-write maps
//     guarded by striped locks. Not shared between processes.
//   - redis: strings and sets in Redis through go-redis. Optional TTL on every key.
//
// Both backends implement AtomicStore, which applies a Batch of writes as one
// unit (MULTI/EXEC on Redis, an exclusive lock in memory).
//
// # Errors
//
// Get returns ErrCacheMiss for an absent key. Any other error means the store
// is unavailable for that call and callers are expected to degrade, not fail.
package cache
