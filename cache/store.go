package cache

import (
	"context"
	"time"
)

// Tier identifies one of the two storage tiers.
type Tier int

const (
	// TierFast holds small payloads under a TTL ceiling.
	TierFast Tier = iota
	// TierDurable holds large payloads without a TTL cap.
	TierDurable
)

// String returns the tier label used in logs and metrics.
func (t Tier) String() string {
	if t == TierDurable {
		return "durable"
	}
	return "fast"
}

// Store is a raw key/value backend for one tier.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Get returns (nil, false, nil) on miss; errors are reserved for backend failures.
//   - ttl is advisory physical retention; freshness is decided from the record.
//   - Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Enumerable is implemented by stores that can list their keys.
type Enumerable interface {
	// Keys returns every physically stored key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Pinger is implemented by stores with a remote backend.
type Pinger interface {
	Ping(ctx context.Context) error
}
