package hotstorage

import (
	"context"
	"sync"

	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/puzpuzpuz/xsync/v3"
)

// Option configures a Router, Synchronizer or Store.
type Option func(*options)

type options struct {
	keys          cache.KeyBuilder
	codec         cache.Codec
	logger        logging.Logger
	metrics       *Metrics
	onError       OnErrorFunc
	atomic        bool
	recordLocks   bool
	repairIndexes bool
	pkFallthrough bool
}

// WithKeyBuilder replaces the default key builder. Every component sharing a
// cache must use the same builder.
func WithKeyBuilder(kb cache.KeyBuilder) Option {
	return func(o *options) { o.keys = kb }
}

// WithCodec replaces the default msgpack codec.
func WithCodec(c cache.Codec) Option {
	return func(o *options) { o.codec = c }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithOnError registers a hook for cache failures that are swallowed.
func WithOnError(fn OnErrorFunc) Option {
	return func(o *options) { o.onError = fn }
}

// WithAtomicIndexes applies each save or delete reconciliation as a single
// atomic batch when the store implements cache.AtomicStore.
func WithAtomicIndexes() Option {
	return func(o *options) { o.atomic = true }
}

// WithRecordLocks serializes reconciliations of the same record within the
// process. Without it two concurrent saves of one record can leave the index
// registry out of step with the index keys.
func WithRecordLocks() Option {
	return func(o *options) { o.recordLocks = true }
}

// WithIndexRepair deletes an index key on lookup when the record it points
// at is no longer cached. The lookup still reports ErrNotFound.
func WithIndexRepair() Option {
	return func(o *options) { o.repairIndexes = true }
}

// WithPrimaryKeyFallthrough makes a primary key cache miss fall through to
// the backing store, like a constraint miss. By default a primary key miss
// is reported as ErrNotFound without consulting the backing store.
func WithPrimaryKeyFallthrough() Option {
	return func(o *options) { o.pkFallthrough = true }
}

// core is the state shared by the router and the synchronizer of one type.
type core struct {
	store   cache.Store
	keys    cache.KeyBuilder
	codec   cache.Codec
	logger  logging.Logger
	metrics *Metrics
	onError OnErrorFunc

	atomic        cache.AtomicStore
	locks         *xsync.MapOf[string, *recordLock]
	repairIndexes bool
	pkFallthrough bool
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func newCore(store cache.Store, opts []Option) *core {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.keys == nil {
		o.keys = cache.NewDefaultKeyBuilder()
	}
	if o.codec == nil {
		o.codec = cache.NewMsgpackCodec()
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}

	c := &core{
		store:         store,
		keys:          o.keys,
		codec:         o.codec,
		logger:        o.logger,
		metrics:       o.metrics,
		onError:       o.onError,
		repairIndexes: o.repairIndexes,
		pkFallthrough: o.pkFallthrough,
	}

	if o.atomic {
		if as, ok := store.(cache.AtomicStore); ok {
			c.atomic = as
		} else {
			c.logger.Warn("atomic indexes requested but the store has no batch support, using sequential writes")
		}
	}
	if o.recordLocks {
		c.locks = xsync.NewMapOf[string, *recordLock]()
	}
	return c
}

// lock acquires the per-record mutex for key when record locks are enabled.
// Entries are reference counted and dropped once nobody holds or waits on them.
func (c *core) lock(key string) func() {
	if c.locks == nil {
		return func() {}
	}

	l, _ := c.locks.Compute(key, func(old *recordLock, loaded bool) (*recordLock, bool) {
		if !loaded {
			old = &recordLock{}
		}
		old.refs++
		return old, false
	})
	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		c.locks.Compute(key, func(old *recordLock, loaded bool) (*recordLock, bool) {
			if !loaded {
				return old, true
			}
			old.refs--
			return old, old.refs <= 0
		})
	}
}

// report sends a swallowed cache failure to the observability channel.
func (c *core) report(ctx context.Context, typ, op string, err error) {
	c.metrics.cacheError(typ, op)
	c.logger.ErrorCtx(ctx, "cache synchronization failed", "type", typ, "op", op, "error", err)
	if c.onError != nil {
		c.onError(ctx, err)
	}
}

// degrade records a cache read failure that was answered by the backing store.
func (c *core) degrade(ctx context.Context, typ, op string, err error) {
	c.metrics.cacheError(typ, op)
	c.logger.WarnCtx(ctx, "cache unavailable, delegating to backing store", "type", typ, "op", op, "error", err)
	if c.onError != nil {
		c.onError(ctx, err)
	}
}
