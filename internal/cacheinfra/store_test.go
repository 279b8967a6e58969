package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type atomicStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	AddToSet(ctx context.Context, setKey string, members ...string) error
	RemoveFromSet(ctx context.Context, setKey string, members ...string) error
	Members(ctx context.Context, setKey string) ([]string, error)
	Atomic(ctx context.Context, fn func(b Batch) error) error
}

func newMemory(t *testing.T) atomicStore {
	t.Helper()
	store, err := NewSturdycStore(DefaultConfig().Memory)
	require.NoError(t, err)
	return store
}

func newRedis(t *testing.T) atomicStore {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultConfig().Redis
	cfg.Addr = mr.Addr()
	store, err := NewRedisStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func eachStore(t *testing.T, fn func(t *testing.T, s atomicStore)) {
	for name, factory := range map[string]func(*testing.T) atomicStore{
		"memory": newMemory,
		"redis":  newRedis,
	} {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStore_GetSetDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s atomicStore) {
		ctx := context.Background()

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrCacheMiss)

		require.NoError(t, s.Set(ctx, "a", []byte("1")))
		require.NoError(t, s.Set(ctx, "b", []byte("2")))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		require.NoError(t, s.Set(ctx, "a", []byte("3")))
		got, err = s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("3"), got)

		require.NoError(t, s.Delete(ctx, "a", "b", "never-set"))
		require.NoError(t, s.Delete(ctx))
		_, err = s.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrCacheMiss)
		_, err = s.Get(ctx, "b")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestStore_Sets(t *testing.T) {
	eachStore(t, func(t *testing.T, s atomicStore) {
		ctx := context.Background()

		members, err := s.Members(ctx, "set")
		require.NoError(t, err)
		assert.NotNil(t, members)
		assert.Empty(t, members)

		require.NoError(t, s.AddToSet(ctx, "set", "x", "y"))
		require.NoError(t, s.AddToSet(ctx, "set", "y", "z"))
		require.NoError(t, s.AddToSet(ctx, "set"))
		members, err = s.Members(ctx, "set")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x", "y", "z"}, members)

		require.NoError(t, s.RemoveFromSet(ctx, "set", "x", "absent"))
		members, err = s.Members(ctx, "set")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"y", "z"}, members)

		require.NoError(t, s.RemoveFromSet(ctx, "set", "y", "z"))
		members, err = s.Members(ctx, "set")
		require.NoError(t, err)
		assert.Empty(t, members)

		require.NoError(t, s.AddToSet(ctx, "gone", "1"))
		require.NoError(t, s.Delete(ctx, "gone"))
		members, err = s.Members(ctx, "gone")
		require.NoError(t, err)
		assert.Empty(t, members)
	})
}

func TestStore_WrongType(t *testing.T) {
	eachStore(t, func(t *testing.T, s atomicStore) {
		ctx := context.Background()
		require.NoError(t, s.AddToSet(ctx, "set", "x"))
		require.NoError(t, s.Set(ctx, "plain", []byte("v")))

		_, err := s.Get(ctx, "set")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCacheMiss))

		_, err = s.Members(ctx, "plain")
		assert.Error(t, err)
	})
}

func TestStore_Atomic(t *testing.T) {
	eachStore(t, func(t *testing.T, s atomicStore) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "old", []byte("1")))
		require.NoError(t, s.AddToSet(ctx, "reg", "old"))

		err := s.Atomic(ctx, func(b Batch) error {
			b.Set("new", []byte("2"))
			b.AddToSet("reg", "new")
			b.Delete("old")
			b.RemoveFromSet("reg", "old")
			b.Delete()
			return nil
		})
		require.NoError(t, err)

		_, err = s.Get(ctx, "old")
		assert.ErrorIs(t, err, ErrCacheMiss)
		got, err := s.Get(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), got)
		members, err := s.Members(ctx, "reg")
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, members)
	})
}

func TestStore_AtomicAbort(t *testing.T) {
	eachStore(t, func(t *testing.T, s atomicStore) {
		ctx := context.Background()
		boom := errors.New("abort")

		err := s.Atomic(ctx, func(b Batch) error {
			b.Set("k", []byte("v"))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestSturdycStore_AtomicWrongTypeAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s, err := NewSturdycStore(DefaultConfig().Memory)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "plain", []byte("v")))

	err = s.Atomic(ctx, func(b Batch) error {
		b.Set("k", []byte("v"))
		b.AddToSet("plain", "x")
		return nil
	})
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSturdycStore_ConcurrentAddToSet(t *testing.T) {
	ctx := context.Background()
	s, err := NewSturdycStore(DefaultConfig().Memory)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AddToSet(ctx, "all", fmt.Sprintf("m-%03d", i)))
		}(i)
	}
	wg.Wait()

	members, err := s.Members(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, members, 100)
	assert.Equal(t, "m-000", members[0])
	assert.Contains(t, s.Keys(), "all")
}

func TestSturdycStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := NewSturdycStore(DefaultConfig().Memory)
	require.NoError(t, err)

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'Y'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newMemory(t)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Set(ctx, "k", nil), context.Canceled)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStoreFromClient(client, time.Minute)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.AddToSet(ctx, "set", "a"))
	require.NoError(t, s.Atomic(ctx, func(b Batch) error {
		b.AddToSet("batched", "a")
		return nil
	}))

	assert.Equal(t, time.Minute, mr.TTL("k"))
	assert.Equal(t, time.Minute, mr.TTL("set"))
	assert.Equal(t, time.Minute, mr.TTL("batched"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// The client belongs to the caller.
	require.NoError(t, s.Close())
	require.NoError(t, s.Ping(ctx))
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig().Redis
	cfg.Addr = mr.Addr()
	cfg.DialTimeout = 100 * time.Millisecond
	s, err := NewRedisStore(cfg)
	require.NoError(t, err)
	defer s.Close()
	mr.Close()

	_, err = s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}
