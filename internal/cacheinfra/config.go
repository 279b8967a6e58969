package cacheinfra

import (
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and configures the key-value store backing the hot storage.
type Config struct {
	// Backend is either BackendMemory or BackendRedis.
	Backend string

	Memory MemoryConfig
	Redis  RedisConfig
}

// MemoryConfig holds the core sturdyc options for the in-process store.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for stored entries. Entries are never refreshed,
	// so an expired entry simply becomes a miss.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration

	// LockStripes is the number of mutexes guarding set read-modify-write
	// cycles. Keys are spread over stripes by hash.
	LockStripes int
}

// RedisConfig holds the connection options for the Redis store.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TTL applied to every written key. Zero keeps keys until deleted.
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Memory: MemoryConfig{
			Capacity:           100000,
			NumShards:          256,
			TTL:                24 * time.Hour,
			EvictionPercentage: 10,
			EvictionInterval:   0, // Use default
			LockStripes:        64,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

// Validate checks if the configuration values are valid.
// Only the section of the selected backend is validated.
func (c Config) Validate() error {
	if err := validation.Validate(c.Backend,
		validation.Required,
		validation.In(BackendMemory, BackendRedis),
	); err != nil {
		return &ConfigError{Field: "Backend", Message: err.Error()}
	}

	switch c.Backend {
	case BackendMemory:
		return firstConfigError("Memory", c.Memory.validate())
	case BackendRedis:
		return firstConfigError("Redis", c.Redis.validate())
	}
	return nil
}

func (m MemoryConfig) validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&m.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&m.TTL, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&m.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&m.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&m.LockStripes, validation.Required, validation.Min(1)),
	)
}

func (r RedisConfig) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Addr, validation.Required),
		validation.Field(&r.DB, validation.Min(0)),
		validation.Field(&r.PoolSize, validation.Min(0)),
		validation.Field(&r.TTL, validation.Min(time.Duration(0))),
	)
}

// firstConfigError converts ozzo field errors into a ConfigError, picking
// the alphabetically first field so the result is deterministic.
func firstConfigError(section string, err error) error {
	if err == nil {
		return nil
	}

	errs, ok := err.(validation.Errors)
	if !ok || len(errs) == 0 {
		return &ConfigError{Field: section, Message: err.Error()}
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	return &ConfigError{Field: section + "." + fields[0], Message: errs[fields[0]].Error()}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
