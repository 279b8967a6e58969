// Package repositorycache puts hot storage in front of a go-repository-bun
// repository.
//
// # Overview
//
// HotRepository implements repository.Repository[T] by decorating a base
// repository. Writes go to the base repository first; once they succeed the
// affected records are mirrored into the cache together with their unique
// index keys. Point reads by primary key or by a configured identifier
// column are answered from the cache. Everything else passes through.
//
// # Basic Usage
//
//	typ, err := schema.FromBunModel[User]()
//	if err != nil {
//		return err
//	}
//	store, err := cache.NewStore(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	users := repositorycache.New[User](base, store, typ,
//		repositorycache.WithIdentifierField("email"),
//	)
//
//	user, err := users.GetByID(ctx, "user-123")       // cache only
//	user, err = users.GetByIdentifier(ctx, "a@x.com") // cache, then base
//
// # Read Paths
//
//   - GetByID without criteria: primary key path. A miss is reported as
//     hotstorage.ErrNotFound and the base repository is not consulted,
//     unless hotstorage.WithPrimaryKeyFallthrough is passed through
//     WithHotStorageOptions.
//   - GetByIdentifier without criteria, when the identifier field is a
//     single-field unique constraint: constraint path. Misses fall through.
//   - Lookup: any exact-match predicate, routed by hotstorage.Router.
//   - Get, List, Count, Raw and every read with criteria: base repository.
//
// Nothing read from the base repository is written to the cache.
//
// # Write Paths
//
//   - Create, Update, Upsert, GetOrCreate and their Many variants synchronize
//     each returned record.
//   - Delete and ForceDelete remove the record and all of its index keys.
//   - DeleteMany and DeleteWhere purge every cached record of the type since
//     the deleted rows are unknown.
//
// Cache failures after a successful write are logged and reported through
// hotstorage.WithOnError; the write itself still succeeds.
//
// # Transactions
//
// The *Tx write methods synchronize the cache as soon as the statement
// succeeds, before the transaction commits. A rolled back transaction
// leaves the cache ahead of the database until the record is written again
// or purged. *Tx reads always use the base repository.
//
// # See Also
//
// The hotstorage package holds the router and synchronizer, the cache
// package the key layout and stores, and pkg/di a container wiring both
// from configuration.
package repositorycache
