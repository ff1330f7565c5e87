package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// Pinger is a component with a reachability probe, such as *cache.TieredCache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports unhealthy when the store cannot be reached.
func StoreChecker(name string, p Pinger) Checker {
	return Func(name, func(ctx context.Context) Result {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("store unreachable", err)
		}
		return Healthy("store reachable")
	})
}

// DefaultSaturation is the window usage ratio at which a service is degraded.
const DefaultSaturation = 0.8

// LimiterChecker reports degraded while any service has used at least
// threshold of its window. A non-positive threshold uses DefaultSaturation.
func LimiterChecker(rl *resilience.RateLimiter, threshold float64) Checker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSaturation
	}
	return Func("ratelimit", func(ctx context.Context) Result {
		details := make(map[string]any)
		var saturated []string

		for _, svc := range rl.Services() {
			used, limit, ok := rl.Usage(svc)
			if !ok || limit.MaxRequests <= 0 {
				continue
			}
			details[svc] = fmt.Sprintf("%d/%d per %s", used, limit.MaxRequests, limit.Window)
			if float64(used) >= threshold*float64(limit.MaxRequests) {
				saturated = append(saturated, svc)
			}
		}

		if len(saturated) > 0 {
			return Degraded("near rate limit: " + strings.Join(saturated, ", ")).WithDetails(details)
		}
		return Healthy("rate windows have room").WithDetails(details)
	})
}

// StatsSource reports cache statistics, such as *cache.TieredCache.
type StatsSource interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// BacklogChecker reports degraded when more than maxExpired expired entries
// await a sweep. Stats failures are degraded, not unhealthy: the cache fails open.
func BacklogChecker(src StatsSource, maxExpired int) Checker {
	return Func("cache_backlog", func(ctx context.Context) Result {
		st, err := src.Stats(ctx)
		details := map[string]any{
			"entries": st.Entries,
			"expired": st.Expired,
			"bytes":   st.Bytes,
		}
		if err != nil {
			r := Degraded("cache stats incomplete").WithDetails(details)
			r.Err = err
			return r
		}
		if st.Expired > maxExpired {
			return Degraded(fmt.Sprintf("%d expired entries awaiting cleanup", st.Expired)).WithDetails(details)
		}
		return Healthy(fmt.Sprintf("%d live entries", st.Entries)).WithDetails(details)
	})
}

// CircuitChecker reports degraded while any breaker is open or probing.
// The pipeline still serves cached content for those services.
func CircuitChecker(breakers ...*resilience.CircuitBreaker) Checker {
	return Func("circuits", func(ctx context.Context) Result {
		details := make(map[string]any, len(breakers))
		var tripped []string

		for _, cb := range breakers {
			snap := cb.Snapshot()
			details[snap.Service] = snap.State.String()
			if snap.State != resilience.StateClosed {
				tripped = append(tripped, snap.Service)
			}
		}

		if len(tripped) > 0 {
			return Degraded("circuit not closed: " + strings.Join(tripped, ", ")).WithDetails(details)
		}
		return Healthy(fmt.Sprintf("%d circuits closed", len(breakers))).WithDetails(details)
	})
}
