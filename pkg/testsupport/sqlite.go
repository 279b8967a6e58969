package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-hotstorage/bunstore"
	"github.com/uptrace/bun"
)

// OpenSQLite returns a bun connection to a private in-memory sqlite
// database that is closed when the test ends. A QueryCounter is attached.
func OpenSQLite(t testing.TB) (*bun.DB, *QueryCounter) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := bunstore.Open(bunstore.Config{
		Driver:       bunstore.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	counter := &QueryCounter{}
	db.AddQueryHook(counter)
	return db, counter
}

// QueryCounter is a bun.QueryHook counting executed queries by operation,
// such as SELECT or INSERT.
type QueryCounter struct {
	mu    sync.Mutex
	count map[string]int
}

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == nil {
		c.count = map[string]int{}
	}
	c.count[event.Operation()]++
}

// Count returns how many queries of operation ran.
func (c *QueryCounter) Count(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count[operation]
}

func (c *QueryCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = nil
}
