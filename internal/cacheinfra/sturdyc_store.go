package cacheinfra

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/viccon/sturdyc"
)

// ErrWrongType is returned when a key is used both as a plain value and as a set.
var ErrWrongType = errors.New("cacheinfra: operation against a key holding the wrong kind of value")

type memberSet map[string]struct{}

// sturdycStore is an in-process cache.Store on top of a sturdyc client.
// Sets are stored as immutable maps and replaced on every change, so readers
// never observe a partially applied mutation.
type sturdycStore struct {
	client  *sturdyc.Client[any]
	stripes []sync.Mutex
	// exclusive is held for writing by Atomic and for reading by every other call.
	exclusive sync.RWMutex
}

// NewSturdycStore creates the in-process store. It is local to the process
// and must not be shared between instances of a distributed deployment.
func NewSturdycStore(cfg MemoryConfig) (*sturdycStore, error) {
	if err := firstConfigError("Memory", cfg.validate()); err != nil {
		return nil, err
	}

	var options []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		options...,
	)

	return &sturdycStore{
		client:  client,
		stripes: make([]sync.Mutex, cfg.LockStripes),
	}, nil
}

func (s *sturdycStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.exclusive.RLock()
	defer s.exclusive.RUnlock()
	return s.get(key)
}

func (s *sturdycStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.exclusive.RLock()
	defer s.exclusive.RUnlock()
	s.set(key, value)
	return nil
}

func (s *sturdycStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.exclusive.RLock()
	defer s.exclusive.RUnlock()
	s.delete(keys...)
	return nil
}

func (s *sturdycStore) AddToSet(ctx context.Context, setKey string, members ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.exclusive.RLock()
	defer s.exclusive.RUnlock()

	mu := s.stripe(setKey)
	mu.Lock()
	defer mu.Unlock()
	return s.addToSet(setKey, members...)
}

func (s *sturdycStore) RemoveFromSet(ctx context.Context, setKey string, members ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.exclusive.RLock()
	defer s.exclusive.RUnlock()

	mu := s.stripe(setKey)
	mu.Lock()
	defer mu.Unlock()
	return s.removeFromSet(setKey, members...)
}

func (s *sturdycStore) Members(ctx context.Context, setKey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.exclusive.RLock()
	defer s.exclusive.RUnlock()

	set, err := s.members(setKey)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

// Atomic queues the operations issued by fn and applies them while holding
// the store exclusively. Nothing is applied when fn returns an error.
func (s *sturdycStore) Atomic(ctx context.Context, fn func(b Batch) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := &memoryBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	s.exclusive.Lock()
	defer s.exclusive.Unlock()

	// Type conflicts are checked up front so a failing batch leaves no trace.
	for _, op := range batch.ops {
		if op.set == "" {
			continue
		}
		if _, err := s.members(op.set); err != nil {
			return err
		}
	}

	for _, op := range batch.ops {
		op.apply(s)
	}
	return nil
}

// Keys returns every live key. Intended for tests and diagnostics.
func (s *sturdycStore) Keys() []string {
	keys := s.client.ScanKeys()
	sort.Strings(keys)
	return keys
}

func (s *sturdycStore) stripe(key string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(key)%uint64(len(s.stripes))]
}

func (s *sturdycStore) get(key string) ([]byte, error) {
	v, ok := s.client.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrWrongType
	}
	return append([]byte(nil), b...), nil
}

func (s *sturdycStore) set(key string, value []byte) {
	s.client.Set(key, append([]byte(nil), value...))
}

func (s *sturdycStore) delete(keys ...string) {
	for _, key := range keys {
		s.client.Delete(key)
	}
}

func (s *sturdycStore) members(setKey string) (memberSet, error) {
	v, ok := s.client.Get(setKey)
	if !ok {
		return memberSet{}, nil
	}
	set, ok := v.(memberSet)
	if !ok {
		return nil, ErrWrongType
	}
	return set, nil
}

func (s *sturdycStore) addToSet(setKey string, members ...string) error {
	current, err := s.members(setKey)
	if err != nil {
		return err
	}

	next := make(memberSet, len(current)+len(members))
	for member := range current {
		next[member] = struct{}{}
	}
	for _, member := range members {
		next[member] = struct{}{}
	}
	s.client.Set(setKey, next)
	return nil
}

func (s *sturdycStore) removeFromSet(setKey string, members ...string) error {
	current, err := s.members(setKey)
	if err != nil {
		return err
	}

	next := make(memberSet, len(current))
	for member := range current {
		next[member] = struct{}{}
	}
	for _, member := range members {
		delete(next, member)
	}

	if len(next) == 0 {
		s.client.Delete(setKey)
		return nil
	}
	s.client.Set(setKey, next)
	return nil
}

type memoryOp struct {
	// set is the set key touched by the op, empty for plain values.
	set   string
	apply func(s *sturdycStore)
}

type memoryBatch struct {
	ops []memoryOp
}

func (b *memoryBatch) Set(key string, value []byte) {
	value = append([]byte(nil), value...)
	b.ops = append(b.ops, memoryOp{apply: func(s *sturdycStore) { s.set(key, value) }})
}

func (b *memoryBatch) Delete(keys ...string) {
	b.ops = append(b.ops, memoryOp{apply: func(s *sturdycStore) { s.delete(keys...) }})
}

func (b *memoryBatch) AddToSet(setKey string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.ops = append(b.ops, memoryOp{set: setKey, apply: func(s *sturdycStore) { _ = s.addToSet(setKey, members...) }})
}

func (b *memoryBatch) RemoveFromSet(setKey string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.ops = append(b.ops, memoryOp{set: setKey, apply: func(s *sturdycStore) { _ = s.removeFromSet(setKey, members...) }})
}
