package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-repository-hotstorage/bunstore"
	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/goliatone/go-repository-hotstorage/pkg/testsupport"
	"github.com/prometheus/client_golang/prometheus"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Log.Level = "error"
	return cfg
}

func newTestContainer(t *testing.T, cfg Config, opts ...Option) *Container {
	t.Helper()
	opts = append([]Option{WithRegisterer(prometheus.NewRegistry()), WithLogger(logging.Nop())}, opts...)
	container, err := NewContainer(cfg, opts...)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })
	return container
}

func TestNewContainer(t *testing.T) {
	container := newTestContainer(t, testConfig())

	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.KeyBuilder() == nil {
		t.Error("Container should have a non-nil key builder")
	}
	if container.Logger() == nil {
		t.Error("Container should have a non-nil logger")
	}
	if container.Metrics() == nil {
		t.Error("Metrics are enabled by default")
	}

	if _, ok := container.Store().(cache.AtomicStore); !ok {
		t.Error("memory store should support atomic batches")
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults(WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	config := container.Config()
	defaults := cache.DefaultConfig()

	if config.Cache.Memory.Capacity != defaults.Memory.Capacity {
		t.Errorf("Expected default capacity %d, got %d", defaults.Memory.Capacity, config.Cache.Memory.Capacity)
	}
	if config.Cache.Memory.TTL != defaults.Memory.TTL {
		t.Errorf("Expected default TTL %v, got %v", defaults.Memory.TTL, config.Cache.Memory.TTL)
	}
	if !config.Hot.RecordLocks {
		t.Error("record locks should be on by default")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Memory.Capacity = 0

	if _, err := NewContainer(cfg, WithRegisterer(prometheus.NewRegistry())); err == nil {
		t.Error("NewContainer() should fail with invalid config")
	}
}

func TestNewContainer_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Hot.Metrics = false

	container := newTestContainer(t, cfg)
	if container.Metrics() != nil {
		t.Error("Metrics() should be nil when disabled")
	}
}

func TestNewContainer_DuplicateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newTestContainer(t, testConfig(), WithRegisterer(reg))
	second := newTestContainer(t, testConfig(), WithRegisterer(reg))

	// Both containers report into the same collectors.
	if first.Metrics() == nil || second.Metrics() == nil {
		t.Fatal("expected metrics on both containers")
	}
}

func TestNewContainer_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Cache.Redis.Addr = mr.Addr()

	container := newTestContainer(t, cfg)
	ctx := context.Background()

	if err := container.Store().Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if !mr.Exists("k") {
		t.Error("value should be written to redis")
	}
	if err := container.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestWithStore(t *testing.T) {
	store, err := cache.NewMemoryStore(cache.DefaultConfig().Memory)
	if err != nil {
		t.Fatalf("NewMemoryStore() failed: %v", err)
	}

	container := newTestContainer(t, testConfig(), WithStore(store))
	if container.Store() != store {
		t.Error("Store() should return the injected store")
	}
}

func TestContainerSingletonBehavior(t *testing.T) {
	container := newTestContainer(t, testConfig())

	if container.Store() != container.Store() {
		t.Error("Store() should return the same instance")
	}
	if container.KeyBuilder() != container.KeyBuilder() {
		t.Error("KeyBuilder() should return the same instance")
	}
}

func TestHotOptions(t *testing.T) {
	testCases := []struct {
		name     string
		hot      HotConfig
		expected int
	}{
		{name: "base options only", hot: HotConfig{}, expected: 3},
		{name: "locks", hot: HotConfig{RecordLocks: true}, expected: 4},
		{
			name: "everything",
			hot: HotConfig{
				AtomicIndexes:         true,
				RecordLocks:           true,
				IndexRepair:           true,
				PrimaryKeyFallthrough: true,
			},
			expected: 7,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Hot = tc.hot
			container := newTestContainer(t, cfg)

			if got := len(container.HotOptions()); got != tc.expected {
				t.Errorf("Expected %d options, got %d", tc.expected, got)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := testsupport.WriteTempFile(t, "hotstorage.yaml", []byte(`
cache:
  backend: memory
  memory:
    capacity: 500
    ttl: 1h
log:
  level: debug
  json: true
database:
  driver: sqlite3
  dsn: "file::memory:?cache=shared"
hot:
  atomic_indexes: true
  slow_query: 50ms
`))

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Cache.Memory.Capacity != 500 {
		t.Errorf("Expected capacity 500, got %d", cfg.Cache.Memory.Capacity)
	}
	if cfg.Cache.Memory.TTL != time.Hour {
		t.Errorf("Expected TTL 1h, got %v", cfg.Cache.Memory.TTL)
	}
	// Omitted keys keep their defaults.
	if cfg.Cache.Memory.NumShards != cache.DefaultConfig().Memory.NumShards {
		t.Errorf("Expected default shards, got %d", cfg.Cache.Memory.NumShards)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
	if cfg.Database.Driver != bunstore.DriverSQLite {
		t.Errorf("Expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if !cfg.Hot.AtomicIndexes || !cfg.Hot.RecordLocks {
		t.Errorf("Unexpected hot config %+v", cfg.Hot)
	}
	if cfg.Hot.SlowQuery != 50*time.Millisecond {
		t.Errorf("Expected slow query 50ms, got %v", cfg.Hot.SlowQuery)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("cache:\n  backend: memcached\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(invalid); err == nil {
		t.Error("expected a validation error for an unknown backend")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("cache: [\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(broken); err == nil {
		t.Error("expected a parse error")
	}
}

func TestOpenDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Database = bunstore.Config{
		Driver:       bunstore.DriverSQLite,
		DSN:          "file:di_open_database?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}
	container := newTestContainer(t, cfg)

	db, err := container.OpenDatabase()
	if err != nil {
		t.Fatalf("OpenDatabase() failed: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.PingContext(context.Background()); err == nil {
		t.Error("database should be closed with the container")
	}
}

func TestOpenDatabase_InvalidConfig(t *testing.T) {
	container := newTestContainer(t, testConfig())

	if _, err := container.OpenDatabase(); err == nil {
		t.Error("OpenDatabase() should fail without a driver")
	}
}
