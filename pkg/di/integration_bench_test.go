package di

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/goliatone/go-repository-hotstorage/pkg/testsupport"
	"github.com/prometheus/client_golang/prometheus"
)

func seedPeople(t testing.TB, people *hotstorage.Store[Person], n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		person := Person{
			ID:    fmt.Sprintf("person-%d", i),
			Name:  fmt.Sprintf("Person %d", i),
			SSN:   fmt.Sprintf("ssn-%d", i),
			Email: testsupport.Email(fmt.Sprintf("person%d@example.com", i)),
		}
		if _, err := people.Save(ctx, person); err != nil {
			t.Fatalf("seed %s: %v", person.ID, err)
		}
	}
}

// TestConcurrentAccess reads cached people from many goroutines.
func TestConcurrentAccess(t *testing.T) {
	container := newTestContainer(t, testConfig())
	backend := testsupport.NewMemoryBackend(testsupport.PersonType())
	people := NewHotStore(container, testsupport.PersonType(), backend)
	seedPeople(t, people, 100)

	ctx := context.Background()
	const numGoroutines = 50
	const operationsPerGoroutine = 20

	var wg sync.WaitGroup
	failures := make(chan error, numGoroutines*operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				n := (workerID*operationsPerGoroutine + j) % 100
				if _, err := people.GetByPK(ctx, fmt.Sprintf("person-%d", n)); err != nil {
					failures <- fmt.Errorf("worker %d GetByPK: %w", workerID, err)
					continue
				}
				if j%5 == 0 {
					if _, err := people.Get(ctx, hotstorage.Predicate{"ssn": fmt.Sprintf("ssn-%d", n)}); err != nil {
						failures <- fmt.Errorf("worker %d Get by ssn: %w", workerID, err)
					}
				}
			}
		}(i)
	}

	wg.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}

	if q := backend.Queries(); q != 0 {
		t.Errorf("Expected every lookup to be served from the cache, got %d backing queries", q)
	}
}

// TestConcurrentReadWrite moves one person's ssn around while readers run.
// Once the writers stop, only the final ssn resolves.
func TestConcurrentReadWrite(t *testing.T) {
	cfg := testConfig()
	cfg.Hot.AtomicIndexes = true
	container := newTestContainer(t, cfg)
	backend := testsupport.NewMemoryBackend(testsupport.PersonType())
	people := NewHotStore(container, testsupport.PersonType(), backend)
	ctx := context.Background()

	if _, err := people.Save(ctx, Person{ID: "shared", Name: "Shared", SSN: "ssn-0"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 10
	const rounds = 20
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 5; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := people.GetByPK(ctx, "shared"); err != nil {
					t.Errorf("reader: %v", err)
					return
				}
			}
		}()
	}

	var writersWG sync.WaitGroup
	for w := 0; w < writers; w++ {
		writersWG.Add(1)
		go func(w int) {
			defer writersWG.Done()
			for i := 0; i < rounds; i++ {
				ssn := fmt.Sprintf("ssn-%d-%d", w, i)
				if _, err := people.Save(ctx, Person{ID: "shared", Name: "Shared", SSN: ssn}); err != nil {
					t.Errorf("writer %d: %v", w, err)
					return
				}
			}
		}(w)
	}
	writersWG.Wait()
	close(stop)
	wg.Wait()

	final, err := backend.Query(ctx, hotstorage.Predicate{"id": "shared"})
	if err != nil {
		t.Fatalf("backend query: %v", err)
	}

	// A last save from the final state makes cache and backend agree.
	if _, err := people.Save(ctx, final); err != nil {
		t.Fatalf("final save: %v", err)
	}
	report, err := people.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.Consistent() {
		t.Errorf("Expected a consistent cache, got %+v", report)
	}

	got, err := people.Get(ctx, hotstorage.Predicate{"ssn": final.SSN})
	if err != nil || got.ID != "shared" {
		t.Errorf("Get by final ssn = %+v, %v", got, err)
	}
	if _, err := people.Get(ctx, hotstorage.Predicate{"ssn": "ssn-0"}); !errors.Is(err, hotstorage.ErrNotFound) {
		t.Errorf("Expected the first ssn to be gone, got %v", err)
	}
}

// TestTTLExpiryIntegration lets cached entries expire. An expired primary
// key is a miss, not a backing query.
func TestTTLExpiryIntegration(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Memory.TTL = 100 * time.Millisecond
	cfg.Cache.Memory.EvictionInterval = 50 * time.Millisecond
	container := newTestContainer(t, cfg)

	backend := testsupport.NewMemoryBackend(testsupport.PersonType())
	people := NewHotStore(container, testsupport.PersonType(), backend)
	ctx := context.Background()

	if _, err := people.Save(ctx, Person{ID: "ttl", Name: "Ephemeral", SSN: "ttl-ssn"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := people.GetByPK(ctx, "ttl"); err != nil {
		t.Fatalf("GetByPK before expiry: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if _, err := people.GetByPK(ctx, "ttl"); !errors.Is(err, hotstorage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}

	// The unique constraint falls through and the record is still persisted.
	got, err := people.Get(ctx, hotstorage.Predicate{"ssn": "ttl-ssn"})
	if err != nil {
		t.Fatalf("Get by ssn after expiry: %v", err)
	}
	if got.ID != "ttl" || backend.Queries() != 1 {
		t.Errorf("Expected one backing query for %+v, got %d", got, backend.Queries())
	}

	// Warm repopulates from the backing store.
	if n, err := people.Warm(ctx); err != nil || n != 1 {
		t.Fatalf("Warm = %d, %v", n, err)
	}
	if _, err := people.GetByPK(ctx, "ttl"); err != nil {
		t.Errorf("GetByPK after warm: %v", err)
	}
}

// TestBatchOperationsIntegration saves and deletes many records and checks
// nothing is left behind.
func TestBatchOperationsIntegration(t *testing.T) {
	for _, atomic := range []bool{false, true} {
		t.Run(fmt.Sprintf("atomic=%v", atomic), func(t *testing.T) {
			cfg := testConfig()
			cfg.Hot.AtomicIndexes = atomic
			container := newTestContainer(t, cfg)
			backend := testsupport.NewMemoryBackend(testsupport.PersonType())
			people := NewHotStore(container, testsupport.PersonType(), backend)
			ctx := context.Background()

			seedPeople(t, people, 25)
			report, err := people.Verify(ctx)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if report.Records != 25 || !report.Consistent() {
				t.Fatalf("Unexpected report %+v", report)
			}

			all, err := backend.All(ctx)
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			for _, person := range all {
				if err := people.Delete(ctx, person); err != nil {
					t.Fatalf("Delete %s: %v", person.ID, err)
				}
			}

			report, err = people.Verify(ctx)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if report.Records != 0 {
				t.Errorf("Expected no cached records, got %d", report.Records)
			}
			if _, err := people.Get(ctx, hotstorage.Predicate{"ssn": "ssn-3"}); !errors.Is(err, hotstorage.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func newBenchStore(b *testing.B) (*hotstorage.Store[Person], *testsupport.MemoryBackend[Person]) {
	b.Helper()
	container, err := NewContainer(testConfig(), WithRegisterer(prometheus.NewRegistry()), WithLogger(logging.Nop()))
	if err != nil {
		b.Fatalf("NewContainer() failed: %v", err)
	}
	b.Cleanup(func() { _ = container.Close() })
	backend := testsupport.NewMemoryBackend(testsupport.PersonType())
	people := NewHotStore(container, testsupport.PersonType(), backend)
	seedPeople(b, people, 100)
	return people, backend
}

func BenchmarkLookupByPrimaryKey(b *testing.B) {
	people, _ := newBenchStore(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := people.GetByPK(ctx, fmt.Sprintf("person-%d", i%100)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLookupByConstraint(b *testing.B) {
	people, _ := newBenchStore(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := people.Get(ctx, hotstorage.Predicate{"ssn": fmt.Sprintf("ssn-%d", i%100)}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCachedVsBackingStore(b *testing.B) {
	people, backend := newBenchStore(b)
	ctx := context.Background()

	b.Run("Cached", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = people.GetByPK(ctx, "person-1")
		}
	})
	b.Run("Backing", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = backend.Query(ctx, hotstorage.Predicate{"id": "person-1"})
		}
	})
}

func BenchmarkSave(b *testing.B) {
	people, _ := newBenchStore(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Alternate the ssn so every save reconciles an index.
		ssn := fmt.Sprintf("bench-ssn-%d", i%2)
		if _, err := people.Save(ctx, Person{ID: "bench", Name: "Bench", SSN: ssn}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentLookup(b *testing.B) {
	people, _ := newBenchStore(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = people.GetByPK(ctx, fmt.Sprintf("person-%d", i%100))
			i++
		}
	})
}
