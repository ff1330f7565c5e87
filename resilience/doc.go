// Package resilience provides the failure handling half of the content
// pipeline substrate: a fixed error taxonomy, classification-driven retry,
// and per-service sliding-window admission.
//
// # Classification
//
// Every failure is reduced to one Classification by an ordered rule table of
// case-insensitive markers. The first matching rule wins, so a message that
// mentions both a timeout and the network is a timeout:
//
//	resilience.Classify("Request timed out due to network error") // timeout
//
// Callers never match on provider error strings; they inspect the Kind of the
// *Error returned by Retry.
//
// # Retry
//
// Retry runs an operation at most MaxRetries+1 times. A failure whose
// classification is not listed in the policy is returned immediately;
// retryable failures sleep an exponentially growing, jittered delay that never
// exceeds MaxDelay:
//
//	r := resilience.NewRetry(resilience.RetryPolicy{
//	    MaxRetries:     3,
//	    InitialDelay:   time.Second,
//	    Multiplier:     2,
//	    MaxDelay:       30 * time.Second,
//	    JitterFraction: 0.1,
//	    RetryableKinds: []resilience.Kind{resilience.KindNetwork, resilience.KindTimeout},
//	})
//	err := r.Execute(ctx, callProvider)
//
// # Rate limiting
//
// RateLimiter keeps one sliding window of timestamps per service. Limits come
// from configuration; services without a limit are always admitted. State is
// held in process memory and resets with each run.
//
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	    Limits: map[string]resilience.Limit{"ai": {MaxRequests: 60, Window: time.Minute}},
//	})
//	text, err := resilience.RateLimited(ctx, rl, "ai", generate)
//
// # Composition
//
// CircuitBreaker, Bulkhead and Timeout complete the set. Executor composes
// them for one service in a fixed order: admission, concurrency, breaker,
// retry, per-attempt deadline.
package resilience
