package hotstorage

import (
	"context"
	"errors"

	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/schema"
)

// Route names how a query is resolved.
type Route int

const (
	// RouteBacking sends the query to the backing store untouched.
	RouteBacking Route = iota
	// RoutePrimaryKey resolves the record blob directly.
	RoutePrimaryKey
	// RouteConstraint resolves an index key to a primary key, then the blob.
	RouteConstraint
)

func (r Route) String() string {
	switch r {
	case RoutePrimaryKey:
		return pathPrimaryKey
	case RouteConstraint:
		return pathConstraint
	default:
		return pathBacking
	}
}

// Router answers exact-match point queries from the cache when the query
// names the primary key or exactly one declared unique constraint, and hands
// everything else to the backing store. It never writes to the cache.
type Router[T any] struct {
	*core
	typ     *schema.Type[T]
	backing Querier[T]
}

// NewRouter creates a router for one record type.
func NewRouter[T any](store cache.Store, typ *schema.Type[T], backing Querier[T], opts ...Option) *Router[T] {
	return newRouter(newCore(store, opts), typ, backing)
}

func newRouter[T any](c *core, typ *schema.Type[T], backing Querier[T]) *Router[T] {
	return &Router[T]{core: c, typ: typ, backing: backing}
}

// Route classifies query without touching any store.
func (r *Router[T]) Route(query Predicate) Route {
	if len(query) == 0 {
		return RouteBacking
	}
	// Null values are never indexed and would render as a literal key part.
	for _, v := range query {
		if isNull(v) {
			return RouteBacking
		}
	}
	if len(query) == 1 {
		for field := range query {
			if r.typ.IsPrimaryKey(field) {
				return RoutePrimaryKey
			}
		}
	}
	if _, ok := r.typ.MatchConstraint(query.Fields()); ok {
		return RouteConstraint
	}
	return RouteBacking
}

// Lookup returns the single record matching query, or ErrNotFound.
//
// A primary key miss is reported as ErrNotFound without consulting the
// backing store unless WithPrimaryKeyFallthrough is set. A constraint miss
// always falls through. Cache failures degrade to the backing store.
func (r *Router[T]) Lookup(ctx context.Context, query Predicate) (T, error) {
	if bypassed(ctx) {
		r.metrics.lookup(r.typ.Name(), pathBacking, resultDelegated)
		return r.delegate(ctx, query)
	}

	switch r.Route(query) {
	case RoutePrimaryKey:
		return r.lookupPrimaryKey(ctx, query)
	case RouteConstraint:
		return r.lookupConstraint(ctx, query)
	default:
		r.metrics.lookup(r.typ.Name(), pathBacking, resultDelegated)
		return r.delegate(ctx, query)
	}
}

func (r *Router[T]) lookupPrimaryKey(ctx context.Context, query Predicate) (T, error) {
	var pk any
	for _, v := range query {
		pk = v
	}

	record, err := r.fetchRecord(ctx, pk)
	switch {
	case err == nil:
		r.metrics.lookup(r.typ.Name(), pathPrimaryKey, resultHit)
		return record, nil
	case errors.Is(err, cache.ErrCacheMiss):
		if r.pkFallthrough {
			r.metrics.lookup(r.typ.Name(), pathPrimaryKey, resultFallthrough)
			return r.delegate(ctx, query)
		}
		r.metrics.lookup(r.typ.Name(), pathPrimaryKey, resultNotFound)
		var zero T
		return zero, ErrNotFound
	default:
		r.metrics.lookup(r.typ.Name(), pathPrimaryKey, resultError)
		r.degrade(ctx, r.typ.Name(), "lookup_primary_key", err)
		return r.delegate(ctx, query)
	}
}

func (r *Router[T]) lookupConstraint(ctx context.Context, query Predicate) (T, error) {
	var zero T
	indexKey := r.keys.IndexKey(r.typ.Prefix(), query)

	pk, err := r.store.Get(ctx, indexKey)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			r.metrics.lookup(r.typ.Name(), pathConstraint, resultFallthrough)
		} else {
			r.metrics.lookup(r.typ.Name(), pathConstraint, resultError)
			r.degrade(ctx, r.typ.Name(), "lookup_index", err)
		}
		return r.delegate(ctx, query)
	}

	record, err := r.fetchRecord(ctx, string(pk))
	switch {
	case err == nil:
		r.metrics.lookup(r.typ.Name(), pathConstraint, resultHit)
		return record, nil
	case errors.Is(err, cache.ErrCacheMiss):
		// The index outlived its record.
		r.metrics.lookup(r.typ.Name(), pathConstraint, resultNotFound)
		if r.repairIndexes {
			r.repairIndex(ctx, indexKey, string(pk))
		}
		return zero, ErrNotFound
	default:
		r.metrics.lookup(r.typ.Name(), pathConstraint, resultError)
		r.degrade(ctx, r.typ.Name(), "lookup_record", err)
		return r.delegate(ctx, query)
	}
}

// repairIndex drops an index key whose record is gone and unregisters it, so
// a later save of the same record writes it again.
func (r *Router[T]) repairIndex(ctx context.Context, indexKey, pk string) {
	if err := r.store.Delete(ctx, indexKey); err != nil {
		r.report(ctx, r.typ.Name(), "repair_index", err)
		return
	}
	registry := r.keys.RegistryKey(r.typ.Prefix(), pk)
	if err := r.store.RemoveFromSet(ctx, registry, indexKey); err != nil {
		r.report(ctx, r.typ.Name(), "repair_index", err)
	}
}

// fetchRecord returns cache.ErrCacheMiss for an absent blob. A blob that
// cannot be decoded is treated as a cache failure.
func (r *Router[T]) fetchRecord(ctx context.Context, pk any) (T, error) {
	var zero T
	blob, err := r.store.Get(ctx, r.keys.RecordKey(r.typ.Prefix(), pk))
	if err != nil {
		return zero, err
	}
	return decode[T](r.codec, blob)
}

// delegate forwards query to the backing store with the primary key alias
// replaced by the real field name. Nothing is written back to the cache.
// Callers record the lookup metric.
func (r *Router[T]) delegate(ctx context.Context, query Predicate) (T, error) {
	normalized := make(Predicate, len(query))
	for field, v := range query {
		if field == schema.PrimaryKeyAlias {
			field = r.typ.PrimaryKeyField()
		}
		normalized[field] = v
	}

	record, err := r.backing.Query(ctx, normalized)
	if err != nil {
		var zero T
		if errors.Is(err, ErrNotFound) {
			return zero, ErrNotFound
		}
		var bse *BackingStoreError
		if errors.As(err, &bse) {
			return zero, err
		}
		return zero, &BackingStoreError{Op: "query", Err: err}
	}
	return record, nil
}
