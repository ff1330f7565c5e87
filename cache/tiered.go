package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

const (
	// DefaultFastCeiling caps the TTL of entries routed to the Fast tier.
	DefaultFastCeiling = 6 * time.Hour

	// DefaultSizeThreshold is the encoded record size at which entries route
	// to Durable.
	DefaultSizeThreshold = 100 * 1024

	keyStripes = 64
)

// TieredCache is a two-tier cache. Small payloads live in the Fast tier under
// a TTL ceiling; large payloads live in the Durable tier. A key is held by at
// most one tier.
//
// Contract:
//   - Concurrency: safe for concurrent use when both stores are. Writes to one
//     key are serialized, so a move between tiers never leaves two copies.
//   - Errors: storage failures are logged and surface as misses or false.
//   - Expiry: an entry is absent once now > expiresAt, swept or not.
type TieredCache struct {
	fast    Store
	durable Store

	now         func() time.Time
	logger      observe.Logger
	metrics     observe.Metrics
	fastCeiling time.Duration
	threshold   int

	flight singleflight.Group
	keys   [keyStripes]sync.Mutex
}

// Option configures a TieredCache.
type Option func(*TieredCache)

// WithClock sets the clock used for entry timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *TieredCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger for recovered storage failures.
func WithLogger(l observe.Logger) Option {
	return func(c *TieredCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(c *TieredCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithFastCeiling overrides the Fast tier TTL ceiling.
// Default: DefaultFastCeiling
func WithFastCeiling(d time.Duration) Option {
	return func(c *TieredCache) {
		if d > 0 {
			c.fastCeiling = d
		}
	}
}

// WithSizeThreshold overrides the Durable routing threshold in bytes.
// Default: DefaultSizeThreshold
func WithSizeThreshold(n int) Option {
	return func(c *TieredCache) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// New creates a TieredCache over the given stores.
func New(fast, durable Store, opts ...Option) (*TieredCache, error) {
	if fast == nil || durable == nil {
		return nil, ErrNilStore
	}
	c := &TieredCache{
		fast:        fast,
		durable:     durable,
		now:         time.Now,
		logger:      observe.NopLogger(),
		metrics:     observe.NopMetrics(),
		fastCeiling: DefaultFastCeiling,
		threshold:   DefaultSizeThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewMemory creates a TieredCache with an in-memory store per tier.
func NewMemory(opts ...Option) *TieredCache {
	c, _ := New(NewMemoryStore(nil), NewMemoryStore(nil), opts...)
	// Stores share the cache clock so physical retention matches freshness.
	c.fast.(*MemoryStore).now = c.now
	c.durable.(*MemoryStore).now = c.now
	return c
}

func (c *TieredCache) store(t Tier) Store {
	if t == TierDurable {
		return c.durable
	}
	return c.fast
}

// Route returns the tier an encoded record of size bytes is written to.
func (c *TieredCache) Route(size int) Tier {
	if size >= c.threshold {
		return TierDurable
	}
	return TierFast
}

// Get returns the payload for key if a fresh entry exists in either tier.
func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if ValidateKey(key) != nil {
		return nil, false
	}
	category := CategoryOf(key)

	for _, tier := range []Tier{TierFast, TierDurable} {
		rec, ok := c.load(ctx, tier, key)
		if !ok {
			continue
		}
		c.metrics.RecordCacheLookup(ctx, category, tier.String(), true)
		return rec.Data, true
	}

	c.metrics.RecordCacheLookup(ctx, category, "", false)
	return nil, false
}

// load reads a fresh record from one tier, evicting expired or corrupt entries.
func (c *TieredCache) load(ctx context.Context, tier Tier, key string) (record, bool) {
	raw, ok, err := c.store(tier).Get(ctx, key)
	if err != nil {
		c.storageError(ctx, "get", tier, key, err)
		return record{}, false
	}
	if !ok {
		return record{}, false
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		c.logger.Warn(ctx, "dropping undecodable cache entry",
			observe.Field{Key: "cache_key", Value: key},
			observe.Field{Key: "tier", Value: tier.String()},
			observe.Field{Key: "error", Value: err},
		)
		c.evict(ctx, tier, key)
		return record{}, false
	}
	if rec.expired(c.now()) {
		c.evict(ctx, tier, key)
		return record{}, false
	}
	return rec, true
}

func (c *TieredCache) evict(ctx context.Context, tier Tier, key string) {
	if _, err := c.evictStale(ctx, tier, key); err != nil {
		c.storageError(ctx, "delete", tier, key, err)
	}
}

// evictStale deletes key from tier if it is still expired or undecodable
// once the key lock is held. A fresh write that raced the caller is kept.
func (c *TieredCache) evictStale(ctx context.Context, tier Tier, key string) (bool, error) {
	defer c.lockKey(key)()

	raw, ok, err := c.store(tier).Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if rec, err := decodeRecord(raw); err == nil && !rec.expired(c.now()) {
		return false, nil
	}
	return true, c.store(tier).Delete(ctx, key)
}

// lockKey locks the stripe owning key and returns its unlock.
func (c *TieredCache) lockKey(key string) func() {
	mu := &c.keys[xxhash.Sum64String(key)%keyStripes]
	mu.Lock()
	return mu.Unlock
}

// Set stores value under key for ttl and reports whether it was stored.
// Entries whose encoded record is at or above the size threshold go to
// Durable; others go to Fast with ttl clamped to the Fast ceiling. Any copy
// in the other tier is removed first.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	if err := ValidateKey(key); err != nil {
		c.logger.Debug(ctx, "rejecting cache key",
			observe.Field{Key: "cache_key", Value: key},
			observe.Field{Key: "error", Value: err},
		)
		return false
	}

	category := CategoryOf(key)
	tier, raw, ttl, err := c.encode(value, c.now(), ttl)
	if err != nil {
		c.storageError(ctx, "encode", tier, key, err)
		c.metrics.RecordCacheSet(ctx, category, tier.String(), false)
		return false
	}

	other := TierDurable
	if tier == TierDurable {
		other = TierFast
	}

	unlock := c.lockKey(key)
	err = c.store(other).Delete(ctx, key)
	op, failed := "delete", other
	if err == nil {
		err = c.store(tier).Set(ctx, key, raw, ttl)
		op, failed = "set", tier
	}
	unlock()

	if err != nil {
		c.storageError(ctx, op, failed, key, err)
		c.metrics.RecordCacheSet(ctx, category, tier.String(), false)
		return false
	}
	c.metrics.RecordCacheSet(ctx, category, tier.String(), true)
	return true
}

// encode serializes value and routes on the encoded size. A record routed
// to Fast is re-encoded with its expiry clamped to the ceiling.
func (c *TieredCache) encode(value []byte, now time.Time, ttl time.Duration) (Tier, []byte, time.Duration, error) {
	rec := record{Data: value, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	raw, err := encodeRecord(rec)
	if err != nil {
		return TierFast, nil, ttl, err
	}

	tier := c.Route(len(raw))
	if tier == TierFast && ttl > c.fastCeiling {
		ttl = c.fastCeiling
		rec.ExpiresAt = now.Add(ttl)
		raw, err = encodeRecord(rec)
	}
	return tier, raw, ttl, err
}

// Delete removes key from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	defer c.lockKey(key)()
	return errors.Join(c.fast.Delete(ctx, key), c.durable.Delete(ctx, key))
}

// DeleteByPrefix removes every key with the given prefix from each
// enumerable tier and returns how many fresh entries were removed.
func (c *TieredCache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	var errs []error
	c.scan(ctx, prefix, func(tier Tier, key string, rec record, state entryState) {
		if err := c.store(tier).Delete(ctx, key); err != nil {
			errs = append(errs, err)
			return
		}
		if state == stateLive {
			removed++
		}
	}, &errs)
	return removed, errors.Join(errs...)
}

// Cleanup removes expired and undecodable entries from each enumerable tier
// and returns how many were removed.
func (c *TieredCache) Cleanup(ctx context.Context) (int, error) {
	removed := 0
	var errs []error
	c.scan(ctx, "", func(tier Tier, key string, rec record, state entryState) {
		if state == stateLive {
			return
		}
		// Missing keys were dropped by the store itself between Keys and Get.
		gone := state == stateMissing
		if !gone {
			var err error
			if gone, err = c.evictStale(ctx, tier, key); err != nil {
				errs = append(errs, err)
				return
			}
		}
		if gone {
			removed++
		}
	}, &errs)
	if removed > 0 {
		c.logger.Debug(ctx, "cache cleanup finished", observe.Field{Key: "removed", Value: removed})
	}
	return removed, errors.Join(errs...)
}

// Stats summarizes the enumerable tiers.
type Stats struct {
	// Entries counts fresh entries.
	Entries int
	// Bytes approximates the stored size of fresh entries.
	Bytes int64
	// Expired counts entries that are absent but not yet swept.
	Expired int
	// PerCategory counts fresh entries by key category.
	PerCategory map[string]int
	// PerTier counts fresh entries by tier label.
	PerTier map[string]int
}

// Stats reports entry counts. It removes nothing itself, though stores that
// expire lazily may drop entries as they are read.
func (c *TieredCache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{PerCategory: map[string]int{}, PerTier: map[string]int{}}
	var errs []error
	c.scan(ctx, "", func(tier Tier, key string, rec record, state entryState) {
		if state != stateLive {
			st.Expired++
			return
		}
		st.Entries++
		st.Bytes += int64(len(key) + len(rec.Data))
		st.PerCategory[CategoryOf(key)]++
		st.PerTier[tier.String()]++
	}, &errs)
	return st, errors.Join(errs...)
}

// Inspect returns the stored entry for key, fresh or not.
func (c *TieredCache) Inspect(ctx context.Context, key string) (Entry, bool) {
	for _, tier := range []Tier{TierFast, TierDurable} {
		raw, ok, err := c.store(tier).Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			continue
		}
		return Entry{
			Key:       key,
			Payload:   rec.Data,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
			SizeBytes: len(rec.Data),
			Tier:      tier,
		}, true
	}
	return Entry{}, false
}

// Ping checks every tier with a remote backend.
func (c *TieredCache) Ping(ctx context.Context) error {
	var errs []error
	for _, tier := range []Tier{TierFast, TierDurable} {
		if p, ok := c.store(tier).(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s tier: %w", tier, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close releases every tier that holds a connection.
func (c *TieredCache) Close() error {
	var errs []error
	for _, tier := range []Tier{TierFast, TierDurable} {
		if cl, ok := c.store(tier).(io.Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s tier: %w", tier, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Now returns the cache clock reading.
func (c *TieredCache) Now() time.Time {
	return c.now()
}

type entryState int

const (
	stateLive entryState = iota
	stateExpired
	stateMissing
	stateCorrupt
)

// scan visits every listed key in the enumerable tiers. Store errors are
// appended to errs and the affected key or tier is skipped.
func (c *TieredCache) scan(ctx context.Context, prefix string, visit func(Tier, string, record, entryState), errs *[]error) {
	now := c.now()
	for _, tier := range []Tier{TierFast, TierDurable} {
		enum, ok := c.store(tier).(Enumerable)
		if !ok {
			continue
		}
		keys, err := enum.Keys(ctx, prefix)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		for _, key := range keys {
			if ctx.Err() != nil {
				*errs = append(*errs, ctx.Err())
				return
			}
			raw, ok, err := c.store(tier).Get(ctx, key)
			switch {
			case err != nil:
				*errs = append(*errs, err)
				continue
			case !ok:
				visit(tier, key, record{}, stateMissing)
				continue
			}
			rec, err := decodeRecord(raw)
			switch {
			case err != nil:
				visit(tier, key, record{}, stateCorrupt)
			case rec.expired(now):
				visit(tier, key, rec, stateExpired)
			default:
				visit(tier, key, rec, stateLive)
			}
		}
	}
}

func (c *TieredCache) storageError(ctx context.Context, op string, tier Tier, key string, err error) {
	c.metrics.RecordCacheError(ctx, op, tier.String())
	c.logger.Warn(ctx, "cache storage failure",
		observe.Field{Key: "op", Value: op},
		observe.Field{Key: "tier", Value: tier.String()},
		observe.Field{Key: "cache_key", Value: key},
		observe.Field{Key: "error", Value: err},
	)
}

func (c *TieredCache) flightGroup() *singleflight.Group {
	return &c.flight
}

var _ Cache = (*TieredCache)(nil)
