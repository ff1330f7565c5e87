package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// GetValue decodes a msgpack value stored under key.
// A payload that does not decode into T is reported as a miss.
func GetValue[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var v T
	if c == nil {
		return v, false
	}
	raw, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// SetValue msgpack-encodes v and stores it under key.
func SetValue[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) bool {
	if c == nil {
		return false
	}
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return false
	}
	return c.Set(ctx, key, raw, ttl)
}

// Producer computes a value on a cache miss.
type Producer[T any] func(ctx context.Context) (T, error)

type flighter interface {
	flightGroup() *singleflight.Group
}

// Cached returns the value under key, or calls produce on a miss and caches
// its result for ttl. Producer errors are returned unchanged and nothing is
// cached. On a TieredCache, concurrent misses for one key share a single
// producer call. A nil cache always calls produce.
func Cached[T any](ctx context.Context, c Cache, key string, ttl time.Duration, produce Producer[T]) (T, error) {
	if v, ok := GetValue[T](ctx, c, key); ok {
		return v, nil
	}

	fill := func() (T, error) {
		if v, ok := GetValue[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := produce(ctx)
		if err != nil {
			return v, err
		}
		SetValue(ctx, c, key, v, ttl)
		return v, nil
	}

	f, ok := c.(flighter)
	if !ok {
		return fill()
	}

	shared, err, _ := f.flightGroup().Do(key, func() (any, error) {
		return fill()
	})
	v, ok := shared.(T)
	if !ok {
		var zero T
		return zero, err
	}
	return v, err
}
