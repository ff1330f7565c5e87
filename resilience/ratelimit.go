package resilience

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

// Limit is a sliding window bound: at most MaxRequests within any trailing Window.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultLimits returns the per-service table used when no configuration is given.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		ServiceAI:     {MaxRequests: 60, Window: time.Minute},
		ServiceImages: {MaxRequests: 200, Window: time.Hour},
		ServiceCMS:    {MaxRequests: 100, Window: time.Minute},
		ServiceTrends: {MaxRequests: 30, Window: time.Minute},
	}
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Limits maps a service name to its window. Services without an entry
	// are not limited.
	Limits map[string]Limit

	// PollInterval is the delay between admission checks while waiting.
	// Default: 1 second
	PollInterval time.Duration

	// WaitOnLimit makes Execute wait for admission instead of failing.
	// Default: false
	WaitOnLimit bool

	// MaxWait bounds the wait in Execute when WaitOnLimit is set.
	// Default: 1 second
	MaxWait time.Duration
}

// RateLimiter implements per-service sliding window admission control.
//
// State lives in process memory: it bounds bursts within one run, not across
// independent runs.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time
	sleep  Sleeper
	logger observe.Logger

	mu        sync.Mutex
	windows   map[string][]time.Time
	unlimited map[string]bool
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *RateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

// WithPollSleeper replaces the sleep used between admission polls.
func WithPollSleeper(s Sleeper) RateLimiterOption {
	return func(rl *RateLimiter) {
		if s != nil {
			rl.sleep = s
		}
	}
}

// WithLimiterLogger sets the logger that reports unconfigured services.
func WithLimiterLogger(l observe.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		if l != nil {
			rl.logger = l
		}
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig, opts ...RateLimiterOption) *RateLimiter {
	// Apply defaults
	if config.Limits == nil {
		config.Limits = DefaultLimits()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}

	limits := make(map[string]Limit, len(config.Limits))
	for name, l := range config.Limits {
		limits[name] = l
	}
	config.Limits = limits

	rl := &RateLimiter{
		config:    config,
		now:       time.Now,
		sleep:     SleepContext,
		logger:    observe.NopLogger(),
		windows:   make(map[string][]time.Time),
		unlimited: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Admit records a request for service if its window has room.
// A rejected request is not recorded.
func (rl *RateLimiter) Admit(service string) bool {
	limit, ok := rl.config.Limits[service]
	if !ok || limit.MaxRequests <= 0 {
		rl.noteUnlimited(service)
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	window := rl.pruneLocked(service, limit, now)

	if len(window) < limit.MaxRequests {
		rl.windows[service] = append(window, now)
		return true
	}

	rl.windows[service] = window
	return false
}

// noteUnlimited logs the first admission of each unconfigured service.
func (rl *RateLimiter) noteUnlimited(service string) {
	rl.mu.Lock()
	first := !rl.unlimited[service]
	rl.unlimited[service] = true
	rl.mu.Unlock()

	if first {
		rl.logger.Debug(context.Background(), "service has no rate limit configured",
			observe.Field{Key: "service", Value: service})
	}
}

// pruneLocked drops timestamps at or before now-Window.
func (rl *RateLimiter) pruneLocked(service string, limit Limit, now time.Time) []time.Time {
	window := rl.windows[service]
	cutoff := now.Add(-limit.Window)

	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}

	n := len(window) - i
	pruned := make([]time.Time, n, max(n, limit.MaxRequests))
	copy(pruned, window[i:])
	return pruned
}

// WaitUntilAdmitted polls Admit every PollInterval until it succeeds or
// maxWait elapses, and returns the final admission result.
// There is no queue: concurrent waiters are not served in order.
func (rl *RateLimiter) WaitUntilAdmitted(ctx context.Context, service string, maxWait time.Duration) bool {
	deadline := rl.now().Add(maxWait)

	for {
		if rl.Admit(service) {
			return true
		}

		remaining := deadline.Sub(rl.now())
		if remaining <= 0 {
			return false
		}

		if err := rl.sleep(ctx, min(rl.config.PollInterval, remaining)); err != nil {
			return false
		}
	}
}

// Execute runs the operation if service is admitted.
func (rl *RateLimiter) Execute(ctx context.Context, service string, op func(context.Context) error) error {
	var admitted bool
	if rl.config.WaitOnLimit {
		admitted = rl.WaitUntilAdmitted(ctx, service, rl.config.MaxWait)
	} else {
		admitted = rl.Admit(service)
	}

	if !admitted {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrRateLimitExceeded
	}

	return op(ctx)
}

// RateLimited evaluates admission for service before invoking fn.
func RateLimited[T any](ctx context.Context, rl *RateLimiter, service string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := rl.Execute(ctx, service, func(ctx context.Context) error {
		v, err := fn(ctx)
		result = v
		return err
	})
	return result, err
}

// Usage reports how many requests currently count toward service's window.
// ok is false for services without a configured limit.
func (rl *RateLimiter) Usage(service string) (count int, limit Limit, ok bool) {
	limit, ok = rl.config.Limits[service]
	if !ok {
		return 0, Limit{}, false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limit.Window)
	for _, ts := range rl.windows[service] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count, limit, true
}

// Limit returns the configured limit for service.
func (rl *RateLimiter) Limit(service string) (Limit, bool) {
	l, ok := rl.config.Limits[service]
	return l, ok
}

// Services returns the configured service names in sorted order.
func (rl *RateLimiter) Services() []string {
	names := make([]string, 0, len(rl.config.Limits))
	for name := range rl.config.Limits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears the recorded window for service.
func (rl *RateLimiter) Reset(service string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, service)
}
