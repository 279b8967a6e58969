package di

import (
	"os"
	"time"

	"github.com/goliatone/go-repository-hotstorage/bunstore"
	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration of a Container, usually loaded from YAML.
type Config struct {
	Cache    cache.Config    `yaml:"cache"`
	Log      logging.Config  `yaml:"log"`
	Database bunstore.Config `yaml:"database"`
	Hot      HotConfig       `yaml:"hot"`
}

// HotConfig maps onto hotstorage options shared by every record type.
type HotConfig struct {
	AtomicIndexes         bool `yaml:"atomic_indexes"`
	RecordLocks           bool `yaml:"record_locks"`
	IndexRepair           bool `yaml:"index_repair"`
	PrimaryKeyFallthrough bool `yaml:"primary_key_fallthrough"`
	Metrics               bool `yaml:"metrics"`
	// SlowQuery is the threshold above which backing store queries are
	// logged at warn level. Zero disables it.
	SlowQuery time.Duration `yaml:"slow_query"`
}

// DefaultConfig uses the in-process store, text logs at info level and
// record locks.
func DefaultConfig() Config {
	return Config{
		Cache: cache.DefaultConfig(),
		Log:   logging.DefaultConfig(),
		Hot: HotConfig{
			RecordLocks: true,
			Metrics:     true,
			SlowQuery:   200 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys missing from the
// file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Cache.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
