package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore is a cache.Store backed by Redis strings and sets.
type redisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	owned  bool
}

// NewRedisStore dials nothing up front; go-redis connects lazily on the first
// command. The returned store owns the client and closes it on Close.
func NewRedisStore(cfg RedisConfig) (*redisStore, error) {
	if err := firstConfigError("Redis", cfg.validate()); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &redisStore{client: client, ttl: cfg.TTL, owned: true}, nil
}

// NewRedisStoreFromClient wraps a caller-owned client. Close is a no-op.
func NewRedisStoreFromClient(client redis.UniversalClient, ttl time.Duration) *redisStore {
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, s.ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisStore) AddToSet(ctx context.Context, setKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if s.ttl <= 0 {
		return s.client.SAdd(ctx, setKey, toArgs(members)...).Err()
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, setKey, toArgs(members)...)
		pipe.Expire(ctx, setKey, s.ttl)
		return nil
	})
	return err
}

func (s *redisStore) RemoveFromSet(ctx context.Context, setKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SRem(ctx, setKey, toArgs(members)...).Err()
}

func (s *redisStore) Members(ctx context.Context, setKey string) ([]string, error) {
	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// Atomic runs the queued operations inside MULTI/EXEC.
func (s *redisStore) Atomic(ctx context.Context, fn func(b Batch) error) error {
	batch := &redisBatch{ctx: ctx, ttl: s.ttl}
	if err := fn(batch); err != nil {
		return err
	}
	if len(batch.ops) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range batch.ops {
			op(pipe)
		}
		return nil
	})
	return err
}

// Close releases the connection pool when the store created it.
func (s *redisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Ping verifies connectivity.
func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type redisBatch struct {
	ctx context.Context
	ttl time.Duration
	ops []func(pipe redis.Pipeliner)
}

func (b *redisBatch) Set(key string, value []byte) {
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.Set(b.ctx, key, value, b.ttl)
	})
}

func (b *redisBatch) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.Del(b.ctx, keys...)
	})
}

func (b *redisBatch) AddToSet(setKey string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.SAdd(b.ctx, setKey, toArgs(members)...)
		if b.ttl > 0 {
			pipe.Expire(b.ctx, setKey, b.ttl)
		}
	})
}

func (b *redisBatch) RemoveFromSet(setKey string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.ops = append(b.ops, func(pipe redis.Pipeliner) {
		pipe.SRem(b.ctx, setKey, toArgs(members)...)
	})
}

func toArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
