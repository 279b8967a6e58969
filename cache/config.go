package cache

import (
	"time"

	"github.com/goliatone/go-repository-hotstorage/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = cacheinfra.BackendMemory
	BackendRedis  = cacheinfra.BackendRedis
)

// Config exposes store configuration options for consumers of the cache package.
type Config struct {
	Backend string       `yaml:"backend"`
	Memory  MemoryConfig `yaml:"memory"`
	Redis   RedisConfig  `yaml:"redis"`
}

// MemoryConfig mirrors the underlying sturdyc options.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
	LockStripes        int           `yaml:"lock_stripes"`
}

// RedisConfig mirrors the go-redis client options the store uses.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TTL          time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewStore constructs the store selected by cfg.Backend. Stores holding
// connections also implement io.Closer.
func NewStore(cfg Config) (Store, error) {
	internal := cfg.toInternal()
	if err := internal.Validate(); err != nil {
		return nil, err
	}

	if internal.Backend == cacheinfra.BackendRedis {
		store, err := cacheinfra.NewRedisStore(internal.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := cacheinfra.NewSturdycStore(internal.Memory)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend: c.Backend,
		Memory: cacheinfra.MemoryConfig{
			Capacity:           c.Memory.Capacity,
			NumShards:          c.Memory.NumShards,
			TTL:                c.Memory.TTL,
			EvictionPercentage: c.Memory.EvictionPercentage,
			EvictionInterval:   c.Memory.EvictionInterval,
			LockStripes:        c.Memory.LockStripes,
		},
		Redis: cacheinfra.RedisConfig{
			Addr:         c.Redis.Addr,
			Username:     c.Redis.Username,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			PoolSize:     c.Redis.PoolSize,
			DialTimeout:  c.Redis.DialTimeout,
			ReadTimeout:  c.Redis.ReadTimeout,
			WriteTimeout: c.Redis.WriteTimeout,
			TTL:          c.Redis.TTL,
		},
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend: cfg.Backend,
		Memory: MemoryConfig{
			Capacity:           cfg.Memory.Capacity,
			NumShards:          cfg.Memory.NumShards,
			TTL:                cfg.Memory.TTL,
			EvictionPercentage: cfg.Memory.EvictionPercentage,
			EvictionInterval:   cfg.Memory.EvictionInterval,
			LockStripes:        cfg.Memory.LockStripes,
		},
		Redis: RedisConfig{
			Addr:         cfg.Redis.Addr,
			Username:     cfg.Redis.Username,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			TTL:          cfg.Redis.TTL,
		},
	}
}

// NewMemoryStore constructs the in-process store directly.
func NewMemoryStore(cfg MemoryConfig) (AtomicStore, error) {
	store, err := cacheinfra.NewSturdycStore(Config{Memory: cfg}.toInternal().Memory)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewRedisStoreFromClient wraps a caller-owned go-redis client. The caller
// keeps ownership of the client lifecycle.
func NewRedisStoreFromClient(client redis.UniversalClient, ttl time.Duration) AtomicStore {
	return cacheinfra.NewRedisStoreFromClient(client, ttl)
}
