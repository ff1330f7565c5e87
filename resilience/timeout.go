package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutConfig configures the per-attempt deadline.
type TimeoutConfig struct {
	// Timeout is the longest a single attempt may run.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds one attempt of a call. An attempt that overruns fails with
// an error wrapping ErrTimeout, which classifies as KindTimeout.
type Timeout struct {
	limit time.Duration
}

// NewTimeout creates a per-attempt deadline.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{limit: config.Timeout}
}

// Limit returns the attempt deadline.
func (t *Timeout) Limit() time.Duration {
	return t.limit
}

// Execute runs op under a deadline of Limit. A cancelled parent returns the
// parent's error, and an op that gave up on the attempt deadline reports the
// overrun. An op that ignores ctx keeps running after Execute returns and its
// result is dropped.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	overrun := fmt.Errorf("%w after %s", ErrTimeout, t.limit)
	attemptCtx, cancel := context.WithTimeoutCause(ctx, t.limit, overrun)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- op(attemptCtx) }()

	var err error
	select {
	case err = <-result:
		if err == nil || !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	case <-attemptCtx.Done():
	}

	if perr := ctx.Err(); perr != nil {
		return perr
	}
	if attemptCtx.Err() != nil {
		return context.Cause(attemptCtx)
	}
	return err
}
