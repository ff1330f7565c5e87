package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

func ExampleClassify() {
	for _, msg := range []string{
		"Request timed out due to network error",
		"HTTP 429: quota exceeded",
		"rest_term_invalid: term_exists",
		"unexpected token in JSON",
	} {
		fmt.Println(resilience.Classify(msg))
	}
	// Output:
	// timeout
	// api_limit
	// service:cms
	// invalid_data
}

func ExampleNewRetry() {
	r := resilience.NewRetry(resilience.RetryPolicy{
		MaxRetries:     2,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		RetryableKinds: []resilience.Kind{resilience.KindNetwork},
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("connection reset by peer")
	})

	var re *resilience.Error
	if errors.As(err, &re) {
		fmt.Println(re.Classification, re.Attempts, attempts)
	}
	fmt.Println(errors.Is(err, resilience.ErrMaxRetriesExceeded))
	// Output:
	// network 3 3
	// true
}

func ExampleWithRetry() {
	wrap := resilience.WithRetry(resilience.RetryPolicy{
		MaxRetries:     3,
		InitialDelay:   time.Millisecond,
		RetryableKinds: []resilience.Kind{resilience.KindTimeout},
	})

	op := wrap(func(ctx context.Context) error {
		return errors.New("401 unauthorized")
	})

	err := op(context.Background())
	re, _ := resilience.AsError(err)
	fmt.Println(re.Classification, re.Attempts)
	// Output:
	// auth 1
}

func ExampleRateLimited() {
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Limits: map[string]resilience.Limit{
			"images": {MaxRequests: 2, Window: time.Hour},
		},
	})

	search := func(ctx context.Context) (string, error) {
		return "ok", nil
	}

	for i := 0; i < 3; i++ {
		_, err := resilience.RateLimited(context.Background(), rl, "images", search)
		fmt.Println(err)
	}
	// Output:
	// <nil>
	// <nil>
	// resilience: rate limit exceeded
}

func ExampleRateLimiter_Usage() {
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{})
	rl.Admit(resilience.ServiceAI)
	rl.Admit(resilience.ServiceAI)

	count, limit, _ := rl.Usage(resilience.ServiceAI)
	fmt.Printf("%d/%d per %s\n", count, limit.MaxRequests, limit.Window)
	// Output:
	// 2/60 per 1m0s
}

func ExampleCircuitBreaker_State() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})

	ctx := context.Background()
	fmt.Println("initial:", cb.State())

	_ = cb.Execute(ctx, func(ctx context.Context) error { return errors.New("invalid payload") })
	_ = cb.Execute(ctx, func(ctx context.Context) error { return errors.New("invalid payload") })
	fmt.Println("after data errors:", cb.State())

	_ = cb.Execute(ctx, func(ctx context.Context) error { return errors.New("network is unreachable") })
	_ = cb.Execute(ctx, func(ctx context.Context) error { return errors.New("network is unreachable") })
	fmt.Println("after outages:", cb.State())
	// Output:
	// initial: closed
	// after data errors: closed
	// after outages: open
}

func ExampleForEach() {
	b := resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 2})
	topics := []string{"solar", "tides", "wind"}

	err := resilience.ForEach(context.Background(), b, topics, func(ctx context.Context, topic string) error {
		if topic == "tides" {
			return fmt.Errorf("%s: no images found", topic)
		}
		return nil
	})
	fmt.Println(err)
	// Output:
	// tides: no images found
}

func ExampleNewExecutor() {
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Limits: map[string]resilience.Limit{resilience.ServiceCMS: {MaxRequests: 100, Window: time.Minute}},
	})

	e := resilience.NewExecutor(resilience.ServiceCMS,
		resilience.WithRateLimiter(rl),
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
		resilience.WithRetrier(resilience.NewRetry(resilience.DefaultPolicy())),
		resilience.WithTimeout(5*time.Second),
	)

	id, err := resilience.Run(context.Background(), e, func(ctx context.Context) (int, error) {
		return 1234, nil
	})
	fmt.Println(id, err)
	// Output:
	// 1234 <nil>
}
