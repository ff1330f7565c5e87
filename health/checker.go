package health

import (
	"context"
	"time"
)

// Status is a component health state. Higher values are worse.
type Status int

const (
	// StatusHealthy means the component works normally.
	StatusHealthy Status = iota
	// StatusDegraded means the component works but is close to a limit.
	StatusDegraded
	// StatusUnhealthy means the component cannot serve calls.
	StatusUnhealthy
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worst returns the more severe of s and other.
func (s Status) Worst(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// Result is the outcome of one check.
type Result struct {
	Status   Status
	Message  string
	Details  map[string]any
	Duration time.Duration
	Checked  time.Time
	Err      error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Err: err}
}

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker reports the health of one component.
//
// Contract:
//   - Concurrency: Check may be called concurrently.
//   - Context: Check should return promptly once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name string
	fn   func(context.Context) Result
}

// Func creates a named Checker from fn.
func Func(name string, fn func(context.Context) Result) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the checker name.
func (f *CheckFunc) Name() string { return f.name }

// Check runs fn.
func (f *CheckFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

var _ Checker = (*CheckFunc)(nil)
