// Package hotstorage keeps a write-through copy of records and their unique
// field indexes in a key-value store, so exact-match point lookups can skip
// the relational backing store.
//
// # Overview
//
// A record type is described by a schema.Type: its key prefix, primary key
// field and unique constraints. For each type three pieces cooperate:
//
//   - Router: classifies a query and answers it from the cache when it names
//     the primary key or exactly one unique constraint
//   - Synchronizer: after a successful backing store write, refreshes the
//     record blob and reconciles its index keys
//   - Store: a facade wiring both to a BackingStore
//
// Basic usage:
//
//	people := schema.MustDefine[Person]("id", personFields, schema.Unique("ssn"))
//	store := hotstorage.New(cacheStore, people, backing)
//
//	saved, err := store.Save(ctx, Person{Name: "Test User 1", SSN: "123456789"})
//	p, err := store.Get(ctx, hotstorage.Predicate{"ssn": "123456789"})
//
// # Lookup Semantics
//
// The query decides the path:
//
//   - {pk: v}: read the record blob. A miss is ErrNotFound and the backing
//     store is not consulted (WithPrimaryKeyFallthrough changes that).
//   - exactly the fields of one unique constraint: read the index key, then
//     the blob. An index miss falls through to the backing store. An index
//     that points at a missing blob is ErrNotFound.
//   - anything else: the backing store, untouched.
//
// A miss is never written back. The cache only learns about records through
// writes (or Warm), so absence in the cache does not mean absence in the
// backing store. Cache errors on reads degrade to the backing store.
//
// # Write Semantics
//
// Save and Delete call the backing store first. Its failure is returned as a
// *BackingStoreError and the cache is left untouched. On success the cache is
// synchronized; a cache failure at that point is logged, counted and passed
// to the OnError hook, and the write still succeeds. The cache may then hold
// a stale blob or stale index keys until the next save of the record.
//
// # Concurrency
//
// All types are safe for concurrent use. Synchronization is a sequence of
// independent store operations, so two concurrent saves of the same record
// can interleave and leave its index registry out of step with its index
// keys. WithRecordLocks serializes synchronization per record inside one
// process; WithAtomicIndexes applies each synchronization as a single batch.
//
// # Maintenance
//
// Inspect, VerifyPrefix and PurgePrefix operate on prefixes and raw keys and
// need no Go type. VerifyPrefix walks the all-ids set and reports records
// whose registered index keys do not resolve back to them.
package hotstorage
