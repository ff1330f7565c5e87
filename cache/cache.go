package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrNilStore   = errors.New("cache: store is nil")
)

// Key categories. Every key starts with one of these followed by ':'.
const (
	CategoryAI     = "ai"
	CategoryImages = "img"
	CategoryTrends = "trends"
	CategoryCMS    = "cms"

	// CategoryOther collects keys outside the fixed set in Stats.
	CategoryOther = "other"
)

// Categories lists the fixed key categories.
var Categories = []string{CategoryAI, CategoryImages, CategoryTrends, CategoryCMS}

// Cache is the interface for caching external call results.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: methods should honor cancellation/deadlines where applicable.
//   - Errors: Get never errors; it returns (nil, false) on miss, expiry or storage failure.
//   - Set reports whether the value was stored; failures never block the caller.
type Cache interface {
	// Get retrieves a cached value. Returns (nil, false) on miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. TTL <= 0 stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error
}

// Key composes a namespaced key "{category}:{raw}".
func Key(category, raw string) string {
	return category + ":" + raw
}

// CategoryOf returns the category prefix of key, or CategoryOther when the
// prefix is not one of Categories.
func CategoryOf(key string) string {
	prefix, _, ok := strings.Cut(key, ":")
	if !ok {
		return CategoryOther
	}
	for _, c := range Categories {
		if prefix == c {
			return c
		}
	}
	return CategoryOther
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
