package cache

import (
	"context"

	"github.com/goliatone/go-repository-hotstorage/internal/cacheinfra"
)

// ErrCacheMiss is returned by Store.Get when the key holds no value.
var ErrCacheMiss = cacheinfra.ErrCacheMiss

// Store is the key-value contract consumed by the hot storage engine. A
// single Store is shared by every caller and must be safe for concurrent use.
// Any error other than ErrCacheMiss means the cache is unavailable for that
// call.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	AddToSet(ctx context.Context, setKey string, members ...string) error
	RemoveFromSet(ctx context.Context, setKey string, members ...string) error
	// Members returns an empty slice for a set that does not exist.
	Members(ctx context.Context, setKey string) ([]string, error)
}

// Batch collects write operations that are applied together by an AtomicStore.
type Batch = cacheinfra.Batch

// AtomicStore is implemented by stores able to apply a group of writes as a
// single unit. Either every queued operation is applied or none is.
type AtomicStore interface {
	Store
	Atomic(ctx context.Context, fn func(b Batch) error) error
}
