package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is matched by errors.Is when a retryable failure
	// exhausted the retry budget.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// Error is the single wrapped error surfaced by the retry executor.
//
// It carries the original failure, the classification that decided whether to
// retry, and the number of attempts actually made.
type Error struct {
	// Err is the error returned by the last attempt.
	Err error

	// Classification is the taxonomy tag derived from Err.
	Classification Classification

	// Attempts is the number of times the operation was invoked.
	Attempts int

	// Exhausted is true when the failure was retryable but the budget ran out.
	Exhausted bool
}

// Error formats the failure with its classification and attempt count.
func (e *Error) Error() string {
	return fmt.Sprintf("resilience: %s after %d attempt(s): %v", e.Classification, e.Attempts, e.Err)
}

// Unwrap returns the original error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrMaxRetriesExceeded for exhausted retryable failures.
func (e *Error) Is(target error) bool {
	return target == ErrMaxRetriesExceeded && e.Exhausted
}

// Message returns the original error text.
func (e *Error) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
