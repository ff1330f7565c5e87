package cache

import "time"

// Default TTLs per key category.
const (
	TTLAI     = 7 * 24 * time.Hour
	TTLImages = 24 * time.Hour
	TTLTrends = time.Hour
	TTLCMS    = 30 * 24 * time.Hour
)

// Policy maps key categories to TTLs.
type Policy struct {
	// TTLs holds the TTL per category.
	TTLs map[string]time.Duration

	// DefaultTTL applies to categories missing from TTLs.
	// If zero, those categories are not cached.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the standard per-category TTLs:
// ai 7 days, img 24 hours, trends 1 hour, cms 30 days.
func DefaultPolicy() Policy {
	return Policy{
		TTLs: map[string]time.Duration{
			CategoryAI:     TTLAI,
			CategoryImages: TTLImages,
			CategoryTrends: TTLTrends,
			CategoryCMS:    TTLCMS,
		},
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// TTL returns the configured TTL for category.
func (p Policy) TTL(category string) time.Duration {
	if ttl, ok := p.TTLs[category]; ok {
		return ttl
	}
	return p.DefaultTTL
}

// ShouldCache returns true if entries of category are cached.
func (p Policy) ShouldCache(category string) bool {
	return p.TTL(category) > 0
}

// EffectiveTTL returns the TTL to use, applying the category default and clamping.
func (p Policy) EffectiveTTL(category string, override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.TTL(category)
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

// With returns a copy of p with category set to ttl.
func (p Policy) With(category string, ttl time.Duration) Policy {
	ttls := make(map[string]time.Duration, len(p.TTLs)+1)
	for k, v := range p.TTLs {
		ttls[k] = v
	}
	ttls[category] = ttl
	p.TTLs = ttls
	return p
}
