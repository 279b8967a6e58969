package hotstorage

import (
	"context"

	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/schema"
	"github.com/pkg/errors"
)

// Store puts a write-through cache in front of a backing store for one
// record type. Writes reach the backing store first and touch the cache only
// on success; cache failures after a successful write are reported through
// the logger, metrics and OnError hook, never returned.
type Store[T any] struct {
	*core
	typ     *schema.Type[T]
	backing BackingStore[T]
	router  *Router[T]
	sync    *Synchronizer[T]
}

// New builds a Store. The router and synchronizer share the options.
func New[T any](store cache.Store, typ *schema.Type[T], backing BackingStore[T], opts ...Option) *Store[T] {
	c := newCore(store, opts)
	return &Store[T]{
		core:    c,
		typ:     typ,
		backing: backing,
		router:  newRouter(c, typ, backing),
		sync:    newSynchronizer(c, typ),
	}
}

// Type returns the resolved record type.
func (s *Store[T]) Type() *schema.Type[T] {
	return s.typ
}

// Router returns the lookup side of the store.
func (s *Store[T]) Router() *Router[T] {
	return s.router
}

// Synchronizer returns the write side of the store.
func (s *Store[T]) Synchronizer() *Synchronizer[T] {
	return s.sync
}

// Get resolves an exact-match query. See Router.Lookup.
func (s *Store[T]) Get(ctx context.Context, query Predicate) (T, error) {
	return s.router.Lookup(ctx, query)
}

// GetByPK is shorthand for a primary key lookup.
func (s *Store[T]) GetByPK(ctx context.Context, pk any) (T, error) {
	return s.router.Lookup(ctx, Predicate{s.typ.PrimaryKeyField(): pk})
}

// Save persists record and, once the backing store succeeded, refreshes the
// cached blob and index keys.
func (s *Store[T]) Save(ctx context.Context, record T) (T, error) {
	saved, err := s.backing.Save(ctx, record)
	if err != nil {
		var zero T
		return zero, &BackingStoreError{Op: "save", Err: err}
	}
	s.AfterSave(ctx, saved)
	return saved, nil
}

// Delete removes record from the backing store and, on success, every cache
// entry derived from it.
func (s *Store[T]) Delete(ctx context.Context, record T) error {
	if err := s.backing.Delete(ctx, record); err != nil {
		return &BackingStoreError{Op: "delete", Err: err}
	}
	s.AfterDelete(ctx, record)
	return nil
}

// AfterSave synchronizes a record another component already persisted.
func (s *Store[T]) AfterSave(ctx context.Context, record T) {
	if err := s.sync.OnSaved(ctx, record); err != nil {
		s.report(ctx, s.typ.Name(), "save", err)
	}
}

// AfterDelete cleans up a record another component already deleted.
func (s *Store[T]) AfterDelete(ctx context.Context, record T) {
	if err := s.sync.OnDeleted(ctx, record); err != nil {
		s.report(ctx, s.typ.Name(), "delete", err)
	}
}

// AfterBulkDelete purges the whole type after rows were deleted without
// being individually known, such as a delete by criteria.
func (s *Store[T]) AfterBulkDelete(ctx context.Context) {
	if _, err := s.sync.Purge(ctx); err != nil {
		s.report(ctx, s.typ.Name(), "purge", err)
	}
}

// Warm synchronizes every record the backing store lists. It requires the
// backing store to implement Lister. Per-record cache failures are reported
// and skipped; the number of records synchronized is returned.
func (s *Store[T]) Warm(ctx context.Context) (int, error) {
	lister, ok := s.backing.(Lister[T])
	if !ok {
		return 0, ErrListingUnsupported
	}

	records, err := lister.All(ctx)
	if err != nil {
		return 0, &BackingStoreError{Op: "list", Err: err}
	}

	synced := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := s.sync.OnSaved(ctx, record); err != nil {
			s.report(ctx, s.typ.Name(), "warm", err)
			continue
		}
		synced++
	}

	s.logger.InfoCtx(ctx, "cache warmed", "type", s.typ.Name(), "records", len(records), "synced", synced)
	return synced, nil
}

// Purge drops every cached entry of the type and returns how many records
// were purged.
func (s *Store[T]) Purge(ctx context.Context) (int, error) {
	n, err := s.sync.Purge(ctx)
	if err != nil {
		return n, errors.Wrapf(err, "purge %s", s.typ.Prefix())
	}
	return n, nil
}

// Verify checks that every cached record's registered index keys resolve to
// that record. See VerifyPrefix.
func (s *Store[T]) Verify(ctx context.Context) (*Report, error) {
	return VerifyPrefix(ctx, s.store, s.keys, s.typ.Prefix())
}
