package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures the aggregator.
type AggregatorConfig struct {
	// Timeout bounds one CheckAll run.
	// Default: 5 seconds
	Timeout time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Aggregator runs registered checkers in parallel and summarizes them.
type Aggregator struct {
	config AggregatorConfig

	mu       sync.RWMutex
	checkers []Checker
	byName   map[string]Checker
}

// NewAggregator creates an aggregator over checkers.
func NewAggregator(config AggregatorConfig, checkers ...Checker) *Aggregator {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	a := &Aggregator{config: config, byName: make(map[string]Checker)}
	for _, c := range checkers {
		_ = a.Register(c)
	}
	return a
}

// Register adds c. Names must be unique.
func (a *Aggregator) Register(c Checker) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byName[c.Name()]; ok {
		return ErrDuplicateChecker
	}
	a.byName[c.Name()] = c
	a.checkers = append(a.checkers, c)
	return nil
}

// Names returns checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

// Check runs the checker registered as name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	c, ok := a.byName[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	return a.run(ctx, c), nil
}

// Report is the outcome of one CheckAll run.
type Report struct {
	Status  Status
	Checked time.Time
	Results map[string]Result
}

// CheckAll runs every checker concurrently. A checker still running at the
// timeout is reported unhealthy with ErrCheckTimeout.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	a.mu.RLock()
	checkers := make([]Checker, len(a.checkers))
	copy(checkers, a.checkers)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	report := Report{
		Status:  StatusHealthy,
		Checked: a.config.Now(),
		Results: make(map[string]Result, len(checkers)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checkers {
		g.Go(func() error {
			r := a.run(gctx, c)
			mu.Lock()
			report.Results[c.Name()] = r
			report.Status = report.Status.Worst(r.Status)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (a *Aggregator) run(ctx context.Context, c Checker) Result {
	start := a.config.Now()
	done := make(chan Result, 1)
	go func() {
		done <- c.Check(ctx)
	}()

	var r Result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Unhealthy("check timed out", ErrCheckTimeout)
	}
	r.Checked = start
	r.Duration = a.config.Now().Sub(start)
	return r
}

// Checker exposes the aggregator as a single Checker named "aggregate".
func (a *Aggregator) Checker() Checker {
	return Func("aggregate", func(ctx context.Context) Result {
		report := a.CheckAll(ctx)
		details := make(map[string]any, len(report.Results))
		for name, r := range report.Results {
			details[name] = r.Status.String()
		}
		return Result{Status: report.Status, Message: report.Status.String(), Details: details}
	})
}
