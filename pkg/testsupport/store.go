package testsupport

import (
	"context"
	"sync"

	"github.com/goliatone/go-repository-hotstorage/cache"
)

// Operation names understood by RecordingStore.
const (
	OpGet           = "get"
	OpSet           = "set"
	OpDelete        = "delete"
	OpAddToSet      = "add_to_set"
	OpRemoveFromSet = "remove_from_set"
	OpMembers       = "members"
)

// RecordingStore wraps a cache.Store, counts calls per operation and fails
// chosen operations on demand. It deliberately hides any batch support of the
// wrapped store.
type RecordingStore struct {
	inner cache.Store

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
}

func NewRecordingStore(inner cache.Store) *RecordingStore {
	return &RecordingStore{
		inner:    inner,
		calls:    map[string]int{},
		failures: map[string]error{},
	}
}

// FailOn makes every subsequent call of op return err.
func (s *RecordingStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Heal removes all injected failures.
func (s *RecordingStore) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]error{}
}

// ResetCalls zeroes the call counters.
func (s *RecordingStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = map[string]int{}
}

// Calls returns how many times op was invoked, failed calls included.
func (s *RecordingStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Writes sums the mutating calls.
func (s *RecordingStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[OpSet] + s.calls[OpDelete] + s.calls[OpAddToSet] + s.calls[OpRemoveFromSet]
}

func (s *RecordingStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.failures[op]
}

func (s *RecordingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.record(OpGet); err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, key)
}

func (s *RecordingStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.record(OpSet); err != nil {
		return err
	}
	return s.inner.Set(ctx, key, value)
}

func (s *RecordingStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.record(OpDelete); err != nil {
		return err
	}
	return s.inner.Delete(ctx, keys...)
}

func (s *RecordingStore) AddToSet(ctx context.Context, key string, members ...string) error {
	if err := s.record(OpAddToSet); err != nil {
		return err
	}
	return s.inner.AddToSet(ctx, key, members...)
}

func (s *RecordingStore) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	if err := s.record(OpRemoveFromSet); err != nil {
		return err
	}
	return s.inner.RemoveFromSet(ctx, key, members...)
}

func (s *RecordingStore) Members(ctx context.Context, key string) ([]string, error) {
	if err := s.record(OpMembers); err != nil {
		return nil, err
	}
	return s.inner.Members(ctx, key)
}
