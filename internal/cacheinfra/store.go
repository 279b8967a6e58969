package cacheinfra

import "errors"

// ErrCacheMiss is returned by Get when the key holds no value.
var ErrCacheMiss = errors.New("cache: miss")

// Batch collects write operations applied together by Atomic.
type Batch interface {
	Set(key string, value []byte)
	Delete(keys ...string)
	AddToSet(setKey string, members ...string)
	RemoveFromSet(setKey string, members ...string)
}
