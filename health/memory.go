package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
)

// MemoryChecker compares heap usage against a ceiling.
type MemoryChecker struct {
	limit    uint64
	warning  float64
	critical float64
	read     func(*runtime.MemStats)
}

// NewMemoryChecker creates a checker that is degraded at 80% and unhealthy at
// 95% of limit bytes. A zero limit uses the memory obtained from the OS.
func NewMemoryChecker(limit uint64) *MemoryChecker {
	return &MemoryChecker{limit: limit, warning: 0.8, critical: 0.95, read: runtime.ReadMemStats}
}

// Name returns "memory".
func (m *MemoryChecker) Name() string { return "memory" }

// Check reads runtime memory statistics.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context done", err)
	}

	var stats runtime.MemStats
	m.read(&stats)

	limit := m.limit
	if limit == 0 {
		limit = stats.Sys
	}
	details := map[string]any{
		"heap_alloc": humanize.IBytes(stats.HeapAlloc),
		"sys":        humanize.IBytes(stats.Sys),
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	if limit == 0 {
		return Healthy("memory stats unavailable").WithDetails(details)
	}

	ratio := float64(stats.HeapAlloc) / float64(limit)
	msg := fmt.Sprintf("heap %s of %s", humanize.IBytes(stats.HeapAlloc), humanize.IBytes(limit))

	switch {
	case ratio >= m.critical:
		return Unhealthy(msg, nil).WithDetails(details)
	case ratio >= m.warning:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}

var _ Checker = (*MemoryChecker)(nil)
