package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dlwpdl/eunsense-automation-sub000/cache"
	"github.com/dlwpdl/eunsense-automation-sub000/observe"
	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// ErrMissingService indicates an empty service name.
var ErrMissingService = errors.New("guard: service name is required")

// Service guards calls to one external service.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: call failures are returned as produced by the retry layer
//     (*resilience.Error), ctx errors, or wrapped resilience.ErrRateLimitExceeded.
type Service struct {
	name     string
	cache    cache.Cache
	limiter  *resilience.RateLimiter
	policy   resilience.RetryPolicy
	retryOps []resilience.RetryOption
	breaker  *resilience.CircuitBreaker
	bulkhead *resilience.Bulkhead
	timeout  time.Duration
	maxWait  time.Duration

	tracer  observe.Tracer
	metrics observe.Metrics
	logger  observe.Logger
	newID   func() string

	executor   *resilience.Executor
	middleware *observe.Middleware
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the cache consulted before every call.
// Default: no caching
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRateLimiter sets the shared rate limiter.
// Default: no admission control
func WithRateLimiter(rl *resilience.RateLimiter) Option {
	return func(s *Service) { s.limiter = rl }
}

// WithPolicy overrides the retry policy.
// Default: PolicyFor(name)
func WithPolicy(p resilience.RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRetryOptions passes options to the underlying resilience.Retry.
func WithRetryOptions(opts ...resilience.RetryOption) Option {
	return func(s *Service) { s.retryOps = append(s.retryOps, opts...) }
}

// WithCircuitBreaker enables a breaker around the retry loop.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// WithBulkhead bounds concurrent calls.
func WithBulkhead(b *resilience.Bulkhead) Option {
	return func(s *Service) { s.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMaxWait bounds the wait for rate-limit admission.
// Default: 0 (a single admission check)
func WithMaxWait(d time.Duration) Option {
	return func(s *Service) { s.maxWait = d }
}

// WithTelemetry sets the tracer, metrics and logger. Nil values keep no-ops.
func WithTelemetry(tracer observe.Tracer, metrics observe.Metrics, logger observe.Logger) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
		if metrics != nil {
			s.metrics = metrics
		}
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New creates a guarded service named name.
func New(name string, opts ...Option) (*Service, error) {
	if name == "" {
		return nil, ErrMissingService
	}
	s := &Service{
		name:    name,
		policy:  PolicyFor(name),
		tracer:  observe.NopTracer(),
		metrics: observe.NopMetrics(),
		logger:  observe.NopLogger(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	policy := s.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(rc resilience.RetryContext) {
		s.metrics.RecordRetry(context.Background(), s.name, rc.LastError.Classification.String())
		s.logger.Warn(context.Background(), "retrying external call",
			observe.Field{Key: "service", Value: s.name},
			observe.Field{Key: "attempt", Value: rc.Attempt},
			observe.Field{Key: "classification", Value: rc.LastError.Classification.String()},
			observe.Field{Key: "next_delay_ms", Value: rc.NextDelay.Milliseconds()},
		)
		if userHook != nil {
			userHook(rc)
		}
	}

	execOpts := []resilience.ExecutorOption{
		resilience.WithRetrier(resilience.NewRetry(policy, s.retryOps...)),
	}
	if s.breaker != nil {
		execOpts = append(execOpts, resilience.WithCircuitBreaker(s.breaker))
	}
	if s.bulkhead != nil {
		execOpts = append(execOpts, resilience.WithBulkhead(s.bulkhead))
	}
	if s.timeout > 0 {
		execOpts = append(execOpts, resilience.WithTimeout(s.timeout))
	}
	s.executor = resilience.NewExecutor(name, execOpts...)
	s.middleware = observe.NewMiddleware(s.tracer, s.metrics, s.logger, observe.WithAnnotator(annotate))

	return s, nil
}

// Name returns the service name used for rate limiting and telemetry.
func (s *Service) Name() string {
	return s.name
}

// Cache returns the configured cache, or nil.
func (s *Service) Cache() cache.Cache {
	return s.cache
}

// Breaker returns the configured circuit breaker, or nil.
func (s *Service) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

// Report summarizes a failure of this service for operators.
func (s *Service) Report(err error) Report {
	return NewReport(s.name, err)
}

// Call runs fn under s. With a non-empty key and a cache, a fresh cached
// value is returned without calling fn, and a successful result is stored
// for ttl. Concurrent misses on one key share a single guarded call.
func Call[T any](ctx context.Context, s *Service, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	call := func(ctx context.Context) (T, error) {
		var result T
		err := s.invoke(ctx, key, func(ctx context.Context) error {
			v, err := fn(ctx)
			if err != nil {
				return err
			}
			result = v
			return nil
		})
		return result, err
	}

	if key == "" || s.cache == nil {
		return call(ctx)
	}
	return cache.Cached(ctx, s.cache, key, ttl, call)
}

// Do runs op under s without caching.
func (s *Service) Do(ctx context.Context, op func(context.Context) error) error {
	return s.invoke(ctx, "", op)
}

func (s *Service) invoke(ctx context.Context, key string, op func(context.Context) error) error {
	meta := observe.CallMeta{Service: s.name, Key: key, CorrelationID: s.newID()}

	return s.middleware.Wrap(func(ctx context.Context, meta observe.CallMeta) error {
		if s.limiter != nil && !s.limiter.WaitUntilAdmitted(ctx, s.name, s.maxWait) {
			s.metrics.RecordRejected(ctx, s.name)
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("guard: %s: %w", s.name, resilience.ErrRateLimitExceeded)
		}

		err := s.executor.Execute(ctx, op)
		if err != nil {
			s.metrics.RecordFailure(ctx, s.name, resilience.ClassifyError(err).String())
		}
		return err
	})(ctx, meta)
}

func annotate(err error) ([]attribute.KeyValue, []observe.Field) {
	classification := resilience.ClassifyError(err).String()
	attempts := 0
	if re, ok := resilience.AsError(err); ok {
		attempts = re.Attempts
	}
	return []attribute.KeyValue{
			attribute.String("error.classification", classification),
			attribute.Int("call.attempts", attempts),
		}, []observe.Field{
			{Key: "classification", Value: classification},
			{Key: "attempts", Value: attempts},
		}
}
