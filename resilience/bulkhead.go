package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of concurrent operations.
	// Default: 4
	MaxConcurrent int

	// MaxWait is the maximum time to wait for a slot.
	// Default: 0 (fail immediately with ErrBulkheadFull)
	MaxWait time.Duration
}

// Bulkhead bounds concurrent calls to one service. It is the worker pool
// that replaces sequential sleeps between batch items; the service's
// RateLimiter still applies to every call it lets through.
type Bulkhead struct {
	config BulkheadConfig
	sem    chan struct{}

	mu        sync.Mutex
	active    int
	maxActive int
	rejected  int64
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Acquire takes a slot, waiting up to MaxWait.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		b.track()
		return nil
	default:
	}

	if b.config.MaxWait <= 0 {
		return b.reject()
	}

	timer := time.NewTimer(b.config.MaxWait)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
		b.track()
		return nil
	case <-timer.C:
		return b.reject()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bulkhead) track() {
	b.mu.Lock()
	b.active++
	b.maxActive = max(b.maxActive, b.active)
	b.mu.Unlock()
}

func (b *Bulkhead) reject() error {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
	return fmt.Errorf("%w: %d calls in flight", ErrBulkheadFull, b.config.MaxConcurrent)
}

// Release returns a slot taken by Acquire.
func (b *Bulkhead) Release() {
	select {
	case <-b.sem:
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	default:
	}
}

// Execute runs the operation within the bulkhead.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	return op(ctx)
}

// ForEach runs fn for every item with at most MaxConcurrent in flight.
// Each item blocks for a slot instead of failing fast. The returned error
// joins every item failure; a cancelled ctx stops scheduling new items.
func ForEach[T any](ctx context.Context, b *Bulkhead, items []T, fn func(context.Context, T) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	stopped := func() error {
		wg.Wait()
		return errors.Join(append(errs, ctx.Err())...)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return stopped()
		}
		select {
		case b.sem <- struct{}{}:
			b.track()
		case <-ctx.Done():
			return stopped()
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer b.Release()
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(item)
	}

	wg.Wait()
	return errors.Join(errs...)
}

// Metrics returns current bulkhead metrics.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BulkheadMetrics{
		Active:        b.active,
		MaxActive:     b.maxActive,
		Available:     b.config.MaxConcurrent - b.active,
		MaxConcurrent: b.config.MaxConcurrent,
		Rejected:      b.rejected,
	}
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	Rejected      int64
}
