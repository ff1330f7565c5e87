package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycConfig configures a SturdycStore.
type SturdycConfig struct {
	// Capacity is the maximum number of entries before eviction.
	// Default: 10000
	Capacity int `yaml:"capacity"`

	// NumShards splits the keyspace to reduce lock contention.
	// Default: 10
	NumShards int `yaml:"num_shards"`

	// TTL is the retention applied to every entry. Per-entry freshness comes
	// from the record, so this should be at least the Fast ceiling.
	// Default: DefaultFastCeiling
	TTL time.Duration `yaml:"ttl"`

	// EvictionPercentage is the share of a full shard evicted at once.
	// Default: 10
	EvictionPercentage int `yaml:"eviction_percentage"`
}

// SturdycStore is a sharded in-memory Store backed by sturdyc with
// capacity-based eviction.
type SturdycStore struct {
	client *sturdyc.Client[[]byte]
}

// NewSturdycStore creates a SturdycStore, applying defaults to zero fields.
func NewSturdycStore(cfg SturdycConfig) *SturdycStore {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = 10
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultFastCeiling
	}
	if cfg.EvictionPercentage <= 0 || cfg.EvictionPercentage > 100 {
		cfg.EvictionPercentage = 10
	}
	return &SturdycStore{
		client: sturdyc.New[[]byte](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage),
	}
}

func (s *SturdycStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.client.Get(key)
	return v, ok, nil
}

// Set stores raw. The client-wide TTL applies; ttl only gates whether to store.
func (s *SturdycStore) Set(_ context.Context, key string, raw []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	value := make([]byte, len(raw))
	copy(value, raw)
	s.client.Set(key, value)
	return nil
}

func (s *SturdycStore) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// Keys lists stored keys with the given prefix in sorted order.
func (s *SturdycStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, k := range s.client.ScanKeys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of entries held by the client.
func (s *SturdycStore) Size() int {
	return s.client.Size()
}

var (
	_ Store      = (*SturdycStore)(nil)
	_ Enumerable = (*SturdycStore)(nil)
)
