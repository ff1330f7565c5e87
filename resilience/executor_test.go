package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewExecutor_Empty(t *testing.T) {
	e := NewExecutor(ServiceAI)

	if e.Service() != ServiceAI {
		t.Errorf("Service() = %q, want %q", e.Service(), ServiceAI)
	}

	called := false
	if err := e.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil || !called {
		t.Errorf("Execute() = %v, called = %v", err, called)
	}
}

func TestExecutor_RateLimitedPerService(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{
		ServiceCMS: {MaxRequests: 1, Window: time.Minute},
		ServiceAI:  {MaxRequests: 5, Window: time.Minute},
	})

	cms := NewExecutor(ServiceCMS, WithRateLimiter(rl))
	ai := NewExecutor(ServiceAI, WithRateLimiter(rl))

	if err := cms.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("first cms call error = %v", err)
	}
	if err := cms.Execute(context.Background(), succeed); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("second cms call error = %v, want ErrRateLimitExceeded", err)
	}
	if err := ai.Execute(context.Background(), succeed); err != nil {
		t.Errorf("ai call error = %v", err)
	}
}

func TestExecutor_RetryThenBreaker(t *testing.T) {
	clock := newFakeClock()
	var delays []time.Duration

	policy := DefaultPolicy()
	policy.MaxRetries = 2
	cb := newTestBreaker(clock, 2)
	e := NewExecutor(ServiceImages,
		WithCircuitBreaker(cb),
		WithRetrier(NewRetry(policy, WithSleeper(recordSleeps(&delays)))),
	)

	calls := 0
	op := func(ctx context.Context) error {
		calls++
		return errOutage
	}

	for i := 0; i < 2; i++ {
		err := e.Execute(context.Background(), op)
		re, ok := AsError(err)
		if !ok || re.Attempts != 3 {
			t.Fatalf("call %d: error = %v, want *Error with 3 attempts", i+1, err)
		}
	}
	if calls != 6 {
		t.Errorf("calls = %d, want 6", calls)
	}

	// Each exhausted retry counts once toward the breaker.
	if cb.State() != StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}
	if err := e.Execute(context.Background(), op); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() with open breaker = %v, want ErrCircuitOpen", err)
	}
	if calls != 6 {
		t.Errorf("operation ran while breaker open")
	}
}

func TestExecutor_TimeoutIsRetried(t *testing.T) {
	var delays []time.Duration
	policy := DefaultPolicy()
	policy.MaxRetries = 1

	e := NewExecutor(ServiceTrends,
		WithRetrier(NewRetry(policy, WithSleeper(recordSleeps(&delays)))),
		WithTimeout(10*time.Millisecond),
	)

	calls := 0
	err := e.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecutor_BulkheadFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	_ = b.Acquire(context.Background())

	e := NewExecutor(ServiceAI, WithBulkhead(b))
	if err := e.Execute(context.Background(), succeed); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}
}

func TestRun(t *testing.T) {
	e := NewExecutor(ServiceAI)

	got, err := Run(context.Background(), e, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Errorf("Run() = %d, %v; want 42", got, err)
	}

	got, err = Run(context.Background(), e, func(ctx context.Context) (int, error) {
		return 7, errors.New("nope")
	})
	if err == nil || got != 0 {
		t.Errorf("Run() = %d, %v; want zero value and error", got, err)
	}
}
