package cache

import (
	"context"
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

// DefaultSweepInterval is how often a Sweeper runs Cleanup.
const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically removes expired entries from a TieredCache.
type Sweeper struct {
	cache    *TieredCache
	interval time.Duration
	logger   observe.Logger
}

// NewSweeper creates a Sweeper. A non-positive interval uses DefaultSweepInterval.
func NewSweeper(c *TieredCache, interval time.Duration, logger observe.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Sweeper{cache: c, interval: interval, logger: logger}
}

// Sweep runs one Cleanup and returns the number of entries removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed, err := s.cache.Cleanup(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn(ctx, "cache sweep incomplete",
			observe.Field{Key: "removed", Value: removed},
			observe.Field{Key: "error", Value: err},
		)
	}
	return removed
}

// Run sweeps every interval until ctx is done and returns ctx.Err().
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
