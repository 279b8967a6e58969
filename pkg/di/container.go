package di

import (
	"io"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-hotstorage/bunstore"
	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/goliatone/go-repository-hotstorage/repositorycache"
	"github.com/goliatone/go-repository-hotstorage/schema"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

// Container provides dependency injection for hot storage components.
// It owns the shared cache store, logger and metrics and hands them to every
// store and repository it builds, so all record types share one key space.
type Container struct {
	store   cache.Store
	keys    cache.KeyBuilder
	logger  logging.Logger
	metrics *hotstorage.Metrics
	config  Config
	closers []io.Closer
}

// Option customizes a Container.
type Option func(*containerOptions)

type containerOptions struct {
	store      cache.Store
	logger     logging.Logger
	registerer prometheus.Registerer
}

// WithStore injects a cache store instead of building one from config. The
// caller keeps ownership of it.
func WithStore(store cache.Store) Option {
	return func(o *containerOptions) { o.store = store }
}

func WithLogger(logger logging.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithRegisterer sets where metrics are registered. Defaults to
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *containerOptions) { o.registerer = reg }
}

// NewContainer builds the cache store, logger and metrics from config.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	o := &containerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Container{
		keys:   cache.NewDefaultKeyBuilder(),
		config: config,
		logger: o.logger,
	}
	if c.logger == nil {
		c.logger = logging.New(config.Log)
	}

	c.store = o.store
	if c.store == nil {
		store, err := cache.NewStore(config.Cache)
		if err != nil {
			return nil, err
		}
		c.store = store
		if closer, ok := store.(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
	}

	if config.Hot.Metrics {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		metrics, err := hotstorage.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		c.metrics = metrics
	}

	c.logger.Debug("container ready", "backend", config.Cache.Backend, "atomic_indexes", config.Hot.AtomicIndexes)
	return c, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

// Store returns the shared cache store.
func (c *Container) Store() cache.Store {
	return c.store
}

func (c *Container) KeyBuilder() cache.KeyBuilder {
	return c.keys
}

func (c *Container) Logger() logging.Logger {
	return c.logger
}

// Metrics is nil when metrics are disabled.
func (c *Container) Metrics() *hotstorage.Metrics {
	return c.metrics
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// HotOptions translates the configuration into hotstorage options.
func (c *Container) HotOptions() []hotstorage.Option {
	opts := []hotstorage.Option{
		hotstorage.WithKeyBuilder(c.keys),
		hotstorage.WithLogger(c.logger),
		hotstorage.WithMetrics(c.metrics),
	}
	if c.config.Hot.AtomicIndexes {
		opts = append(opts, hotstorage.WithAtomicIndexes())
	}
	if c.config.Hot.RecordLocks {
		opts = append(opts, hotstorage.WithRecordLocks())
	}
	if c.config.Hot.IndexRepair {
		opts = append(opts, hotstorage.WithIndexRepair())
	}
	if c.config.Hot.PrimaryKeyFallthrough {
		opts = append(opts, hotstorage.WithPrimaryKeyFallthrough())
	}
	return opts
}

// OpenDatabase connects to the configured backing database and attaches a
// query logger. The connection is closed with the container.
func (c *Container) OpenDatabase() (*bun.DB, error) {
	db, err := bunstore.Open(c.config.Database)
	if err != nil {
		return nil, err
	}
	db.AddQueryHook(bunstore.NewQueryLogger(c.logger, c.config.Hot.SlowQuery))
	c.closers = append(c.closers, db)
	return db, nil
}

// Close releases the stores and connections the container opened. Injected
// stores are left alone.
func (c *Container) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = errors.Wrap(err, "close")
		}
	}
	c.closers = nil
	return first
}

// NewHotStore builds a hotstorage.Store for one record type on the shared
// cache. Since Go methods cannot have type parameters, this is a package
// level function.
func NewHotStore[T any](c *Container, typ *schema.Type[T], backing hotstorage.BackingStore[T], opts ...hotstorage.Option) *hotstorage.Store[T] {
	return hotstorage.New(c.store, typ, backing, append(c.HotOptions(), opts...)...)
}

// NewBunHotStore uses a bunstore.Store over db as the backing store.
func NewBunHotStore[T any](c *Container, db bun.IDB, typ *schema.Type[T], opts ...hotstorage.Option) *hotstorage.Store[T] {
	return NewHotStore(c, typ, bunstore.New(db, typ), opts...)
}

// NewHotRepository wraps a go-repository-bun repository.
// Example: NewHotRepository[User](container, baseUserRepository, userType)
func NewHotRepository[T any](c *Container, base repository.Repository[T], typ *schema.Type[T], opts ...repositorycache.Option) *repositorycache.HotRepository[T] {
	opts = append([]repositorycache.Option{repositorycache.WithHotStorageOptions(c.HotOptions()...)}, opts...)
	return repositorycache.New(base, c.store, typ, opts...)
}
