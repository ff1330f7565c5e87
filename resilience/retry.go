package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"time"
)

// RetryPolicy configures classification-driven retry with exponential backoff.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	// The operation runs at most MaxRetries+1 times. Negative values mean 0.
	MaxRetries int

	// InitialDelay is the base delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// Multiplier grows the base delay after each retry.
	// Default: 2.0 (values below 1 are replaced by the default)
	Multiplier float64

	// MaxDelay caps every delay, jitter included.
	// Default: 30s
	MaxDelay time.Duration

	// JitterFraction adds up to delay*JitterFraction of random delay.
	// Clamped to [0, 1].
	JitterFraction float64

	// RetryableKinds lists the kinds that trigger a retry.
	RetryableKinds []Kind

	// RetryableServices lists service-specific tags that trigger a retry.
	RetryableServices []string

	// OnRetry is called before each backoff sleep.
	OnRetry func(rc RetryContext)
}

// RetryContext describes one pending retry. It is scoped to a single Execute.
type RetryContext struct {
	// Attempt is the number of attempts made so far.
	Attempt int
	// LastError is the classified failure of the latest attempt.
	LastError *Error
	// NextDelay is the sleep before the next attempt.
	NextDelay time.Duration
}

// DefaultPolicy retries transport failures, timeouts and quota rejections.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialDelay:   time.Second,
		Multiplier:     2.0,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
		RetryableKinds: []Kind{KindNetwork, KindTimeout, KindAPILimit},
	}
}

// Retryable reports whether c should be retried under this policy.
func (p RetryPolicy) Retryable(c Classification) bool {
	if c.Kind == KindService && slices.Contains(p.RetryableServices, c.Service) {
		return true
	}
	return slices.Contains(p.RetryableKinds, c.Kind)
}

// Sleeper pauses for d or until ctx is done, returning ctx.Err() in the latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry executes operations under a RetryPolicy.
type Retry struct {
	policy     RetryPolicy
	classifier *Classifier
	sleep      Sleeper
	jitter     func(max time.Duration) time.Duration
}

// RetryOption configures a Retry.
type RetryOption func(*Retry)

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) RetryOption {
	return func(r *Retry) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithSleeper replaces the backoff sleep primitive.
func WithSleeper(s Sleeper) RetryOption {
	return func(r *Retry) {
		if s != nil {
			r.sleep = s
		}
	}
}

// WithJitterSource replaces the random source. fn returns a value in [0, max].
func WithJitterSource(fn func(max time.Duration) time.Duration) RetryOption {
	return func(r *Retry) {
		if fn != nil {
			r.jitter = fn
		}
	}
}

// NewRetry creates a new retry executor.
func NewRetry(policy RetryPolicy, opts ...RetryOption) *Retry {
	// Apply defaults
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 100 * time.Millisecond
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2.0
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	policy.JitterFraction = min(max(policy.JitterFraction, 0), 1)

	r := &Retry{
		policy:     policy,
		classifier: defaultClassifier,
		sleep:      SleepContext,
		jitter:     uniformJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return time.Duration(rand.Int64N(int64(max) + 1))
}

// Execute runs op until it succeeds, fails with a non-retryable
// classification, or exhausts MaxRetries. Failures are returned as *Error.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	delay := r.policy.InitialDelay

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		classified := &Error{
			Err:            err,
			Classification: r.classifier.ClassifyError(err),
			Attempts:       attempt + 1,
		}

		if !r.policy.Retryable(classified.Classification) {
			return classified
		}
		if attempt >= r.policy.MaxRetries {
			classified.Exhausted = true
			return classified
		}

		wait := delay + r.jitter(time.Duration(float64(delay)*r.policy.JitterFraction))
		if wait > r.policy.MaxDelay {
			wait = r.policy.MaxDelay
		}

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(RetryContext{
				Attempt:   classified.Attempts,
				LastError: classified,
				NextDelay: wait,
			})
		}

		if err := r.sleep(ctx, wait); err != nil {
			return errors.Join(err, classified)
		}

		delay = min(time.Duration(float64(delay)*r.policy.Multiplier), r.policy.MaxDelay)
	}
}

// Policy returns the normalized retry policy.
func (r *Retry) Policy() RetryPolicy {
	return r.policy
}

// Do runs a value-returning operation under r.
func Do[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Operation is a fallible unit of work.
type Operation func(ctx context.Context) error

// WithRetry returns a wrapper that runs operations under policy.
func WithRetry(policy RetryPolicy, opts ...RetryOption) func(Operation) Operation {
	r := NewRetry(policy, opts...)
	return func(op Operation) Operation {
		return func(ctx context.Context) error {
			return r.Execute(ctx, op)
		}
	}
}
