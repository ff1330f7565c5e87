// Package app wires a configuration into one Substrate: the observer, the
// tiered cache, the rate limiter, one guard per service, the providers and
// the health checks. Every dependency is an explicit field; nothing is global.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/config"
	"github.com/dlwpdl/eunsense-automation-sub000/guard"
	"github.com/dlwpdl/eunsense-automation-sub000/health"
	"github.com/dlwpdl/eunsense-automation-sub000/observe"
	"github.com/dlwpdl/eunsense-automation-sub000/providers/ai"
	"github.com/dlwpdl/eunsense-automation-sub000/providers/cms"
	"github.com/dlwpdl/eunsense-automation-sub000/providers/images"
	"github.com/dlwpdl/eunsense-automation-sub000/providers/trends"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// Substrate is one wired instance.
type Substrate struct {
	Config   *config.Config
	Observer observe.Observer
	Logger   observe.Logger
	Metrics  observe.Metrics
	Cache    *cache.TieredCache
	Limiter  *resilience.RateLimiter
	Health   *health.Aggregator

	// Sweeper is nil when the sweep interval is negative.
	Sweeper *cache.Sweeper

	// Providers are nil when their credentials are not configured.
	AI     ai.Generator
	Images *images.Client
	Trends *trends.Client
	CMS    *cms.Client

	services map[string]*guard.Service
}

type options struct {
	now       func() time.Time
	logWriter io.Writer
	retryOpts []resilience.RetryOption
}

// Option configures New.
type Option func(*options)

// WithClock replaces time.Now in the cache, limiter, breakers and providers.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogWriter sends log output to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// WithRetryOptions passes options to every service's retrier.
func WithRetryOptions(opts ...resilience.RetryOption) Option {
	return func(o *options) {
		o.retryOpts = append(o.retryOpts, opts...)
	}
}

// New builds a Substrate from cfg. On error, everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Substrate, err error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Substrate{Config: cfg, services: make(map[string]*guard.Service)}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	obsCfg := cfg.ObserveConfig()
	obsCfg.Logging.Writer = o.logWriter
	if s.Observer, err = observe.NewObserver(ctx, obsCfg); err != nil {
		return nil, fmt.Errorf("app: observer: %w", err)
	}
	s.Logger = s.Observer.Logger()
	if s.Metrics, err = observe.NewMetrics(s.Observer.Meter()); err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}
	tracer := observe.NewTracer(s.Observer.Tracer())

	fast, durable, err := openStores(ctx, cfg.Cache, o.now, s.Logger)
	if err != nil {
		return nil, err
	}
	s.Cache, err = cache.New(fast, durable,
		cache.WithClock(o.now),
		cache.WithLogger(s.Logger),
		cache.WithMetrics(s.Metrics),
		cache.WithFastCeiling(cfg.Cache.FastCeiling),
		cache.WithSizeThreshold(cfg.Cache.SizeThreshold),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Cache.SweepInterval > 0 {
		s.Sweeper = cache.NewSweeper(s.Cache, cfg.Cache.SweepInterval, s.Logger)
	}

	s.Limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Limits:       cfg.RateLimits(),
		PollInterval: cfg.Guard.PollInterval,
	}, resilience.WithClock(o.now), resilience.WithLimiterLogger(s.Logger))

	for _, name := range serviceNames(cfg) {
		svc, err := s.newService(name, tracer, o)
		if err != nil {
			return nil, err
		}
		s.services[name] = svc
	}

	if err := s.wireProviders(ctx, o.now); err != nil {
		return nil, err
	}
	if err := s.wireHealth(o.now); err != nil {
		return nil, err
	}

	s.Logger.Info(ctx, "substrate ready",
		observe.Field{Key: "fast", Value: cfg.Cache.Fast},
		observe.Field{Key: "durable", Value: cfg.Cache.Durable},
		observe.Field{Key: "services", Value: s.Services()},
	)
	return s, nil
}

// openStores creates the Fast and Durable tier stores.
func openStores(ctx context.Context, cc config.CacheConfig, now func() time.Time, logger observe.Logger) (fast, durable cache.Store, err error) {
	switch cc.Fast {
	case config.BackendSturdyc:
		sc := cc.Sturdyc
		if sc.TTL < cc.FastCeiling {
			sc.TTL = cc.FastCeiling
		}
		fast = cache.NewSturdycStore(sc)
	case config.BackendRedis:
		if fast, err = cache.NewRedisStore(ctx, cc.Redis); err != nil {
			return nil, nil, fmt.Errorf("app: fast tier: %w", err)
		}
	default:
		fast = cache.NewMemoryStore(now)
	}

	switch cc.Durable {
	case config.BackendSQL:
		durable, err = cache.OpenSQLStore(ctx, cc.SQL, cache.WithSQLClock(now), cache.WithSQLLogger(logger))
		if err != nil {
			if cl, ok := fast.(io.Closer); ok {
				_ = cl.Close()
			}
			return nil, nil, fmt.Errorf("app: durable tier: %w", err)
		}
	default:
		durable = cache.NewMemoryStore(now)
	}
	return fast, durable, nil
}

// serviceNames returns the pipeline services plus any named only in configuration.
func serviceNames(cfg *config.Config) []string {
	names := []string{resilience.ServiceAI, resilience.ServiceImages, resilience.ServiceTrends, resilience.ServiceCMS}
	for name := range maps.Keys(cfg.Limits) {
		names = append(names, name)
	}
	for name := range maps.Keys(cfg.Retry) {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func (s *Substrate) newService(name string, tracer observe.Tracer, o options) (*guard.Service, error) {
	gc := s.Config.Guard
	opts := []guard.Option{
		guard.WithCache(s.Cache),
		guard.WithRateLimiter(s.Limiter),
		guard.WithPolicy(s.Config.RetryPolicy(name)),
		guard.WithRetryOptions(o.retryOpts...),
		guard.WithMaxWait(gc.MaxWait),
		guard.WithTimeout(gc.Timeout),
		guard.WithTelemetry(tracer, s.Metrics, s.Logger),
	}
	if gc.Breaker.Enabled {
		logger := s.Logger
		opts = append(opts, guard.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Service:      name,
			MaxFailures:  gc.Breaker.MaxFailures,
			ResetTimeout: gc.Breaker.ResetTimeout,
			Now:          o.now,
			OnStateChange: func(tr resilience.Transition) {
				logger.Warn(context.Background(), "circuit state changed",
					observe.Field{Key: "service", Value: tr.Service},
					observe.Field{Key: "from", Value: tr.From.String()},
					observe.Field{Key: "to", Value: tr.To.String()},
					observe.Field{Key: "outages", Value: tr.Outages},
				)
			},
		})))
	}
	if gc.Bulkhead.MaxConcurrent > 0 {
		opts = append(opts, guard.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: gc.Bulkhead.MaxConcurrent,
			MaxWait:       gc.Bulkhead.MaxWait,
		})))
	}

	svc, err := guard.New(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: service %q: %w", name, err)
	}
	return svc, nil
}

func (s *Substrate) wireProviders(ctx context.Context, now func() time.Time) error {
	pc := s.Config.Providers
	policy := s.Config.Cache.Policy()

	if pc.AI.APIKey != "" {
		var gen ai.Generator
		var err error
		switch pc.AI.Provider {
		case config.ProviderGemini:
			gen, err = ai.NewGemini(ctx, ai.GeminiConfig{APIKey: pc.AI.APIKey, Model: pc.AI.Model, BaseURL: pc.AI.BaseURL})
		default:
			gen, err = ai.NewOpenAI(ai.OpenAIConfig{APIKey: pc.AI.APIKey, Model: pc.AI.Model, BaseURL: pc.AI.BaseURL, MaxTokens: pc.AI.MaxTokens})
		}
		if err != nil {
			return fmt.Errorf("app: ai provider: %w", err)
		}
		s.AI = ai.NewGuarded(gen, s.services[resilience.ServiceAI], policy.TTL(cache.CategoryAI))
	}

	if pc.Images.AccessKey != "" {
		c, err := images.New(images.Config{
			AccessKey: pc.Images.AccessKey,
			BaseURL:   pc.Images.BaseURL,
			PerPage:   pc.Images.PerPage,
			Timeout:   pc.Images.Timeout,
			TTL:       policy.TTL(cache.CategoryImages),
		}, s.services[resilience.ServiceImages])
		if err != nil {
			return fmt.Errorf("app: images provider: %w", err)
		}
		s.Images = c
	}

	s.Trends = trends.New(trends.Config{
		FeedURL: pc.Trends.FeedURL,
		Timeout: pc.Trends.Timeout,
		TTL:     policy.TTL(cache.CategoryTrends),
		Now:     now,
	}, s.services[resilience.ServiceTrends])

	if pc.CMS.BaseURL != "" {
		c, err := cms.New(cms.Config{
			BaseURL:         pc.CMS.BaseURL,
			Username:        pc.CMS.Username,
			Password:        pc.CMS.Password,
			TokenPath:       pc.CMS.TokenPath,
			Timeout:         pc.CMS.Timeout,
			TermTTL:         policy.TTL(cache.CategoryCMS),
			TermConcurrency: pc.CMS.TermConcurrency,
			Now:             now,
		}, s.services[resilience.ServiceCMS])
		if err != nil {
			return fmt.Errorf("app: cms provider: %w", err)
		}
		s.CMS = c
	}
	return nil
}

func (s *Substrate) wireHealth(now func() time.Time) error {
	hc := s.Config.Health
	s.Health = health.NewAggregator(health.AggregatorConfig{Timeout: hc.Timeout, Now: now},
		health.StoreChecker("cache", s.Cache),
		health.LimiterChecker(s.Limiter, hc.Saturation),
		health.BacklogChecker(s.Cache, hc.MaxExpired),
	)

	var breakers []*resilience.CircuitBreaker
	for _, name := range s.Services() {
		if cb := s.services[name].Breaker(); cb != nil {
			breakers = append(breakers, cb)
		}
	}
	if len(breakers) > 0 {
		if err := s.Health.Register(health.CircuitChecker(breakers...)); err != nil {
			return fmt.Errorf("app: health: %w", err)
		}
	}

	limit, err := hc.MemoryLimitBytes()
	if err != nil {
		return fmt.Errorf("app: health: %w", err)
	}
	if limit > 0 {
		return s.Health.Register(health.NewMemoryChecker(limit))
	}
	return nil
}

// Service returns the guard for name.
func (s *Substrate) Service(name string) (*guard.Service, bool) {
	svc, ok := s.services[name]
	return svc, ok
}

// Services returns the guarded service names in sorted order.
func (s *Substrate) Services() []string {
	return slices.Sorted(maps.Keys(s.services))
}

// Handler serves the health endpoints and, with the prometheus exporter, /metrics.
func (s *Substrate) Handler() http.Handler {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, s.Health)
	if h := s.Observer.MetricsHandler(); h != nil {
		mux.Handle("/metrics", h)
	}
	return mux
}

// Close releases the cache stores and flushes telemetry. Safe on a partially
// built Substrate.
func (s *Substrate) Close(ctx context.Context) error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.Observer != nil {
		errs = append(errs, s.Observer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
