// Package cache provides small TTL caches used to avoid re-signing URLs on
// every request. Values never outlive the TTL they were stored with.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when a key is missing or expired.
	ErrNotFound = errors.New("cache: key not found")
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")
)

// Cache is a generic key-value cache with TTL support.
// A non-positive TTL on Set means the value is not cached.
type Cache[V any] interface {
	// Get returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type jsonMarshaler[V any] struct{}

func (jsonMarshaler[V]) Marshal(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonMarshaler[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}

var sfGroup singleflight.Group

type getOrSetResult[V any] struct {
	val V
	ttl time.Duration
}

// GetOrSet returns the cached value for key, or calls fn on a miss. Concurrent
// misses for the same key share one call to fn. Values for which fn reports a
// non-positive TTL are returned but not cached.
func GetOrSet[V any](ctx context.Context, c Cache[V], key string, fn func(ctx context.Context) (V, time.Duration, error)) (V, error) {
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	// Flights are scoped to c: caches of different V may share key names.
	v, err, _ := sfGroup.Do(fmt.Sprintf("%p\x00%s", c, key), func() (any, error) {
		val, ttl, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return getOrSetResult[V]{val: val, ttl: ttl}, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	r, ok := v.(getOrSetResult[V])
	if !ok {
		var zero V
		return zero, fmt.Errorf("cache: unexpected shared result %T for key %q", v, key)
	}
	if r.ttl > 0 {
		// Best effort; a failed write only costs a re-sign later.
		_ = c.Set(ctx, key, r.val, r.ttl)
	}
	return r.val, nil
}
