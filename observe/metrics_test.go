package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name in ResourceMetrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, "ai", "fast", true)
	m.RecordCacheLookup(ctx, "ai", "durable", true)
	m.RecordCacheLookup(ctx, "img", "", false)
	m.RecordCacheSet(ctx, "ai", "fast", true)
	m.RecordCacheError(ctx, "get", "durable")
	m.RecordRetry(ctx, "ai", "timeout")
	m.RecordRetry(ctx, "ai", "network")
	m.RecordFailure(ctx, "cms", "auth")
	m.RecordRejected(ctx, "images")

	rm := collect(t, reader)
	want := map[string]int64{
		"cache.hits":         2,
		"cache.misses":       1,
		"cache.sets":         1,
		"cache.errors":       1,
		"retry.attempts":     2,
		"retry.failures":     1,
		"ratelimit.rejected": 1,
	}
	for name, n := range want {
		if got := counterTotal(t, rm, name); got != n {
			t.Errorf("%s = %d, want %d", name, got, n)
		}
	}
}

func TestMetrics_CallDuration(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCall(context.Background(), "trends", 120*time.Millisecond, nil)
	m.RecordCall(context.Background(), "trends", 80*time.Millisecond, errors.New("boom"))

	found := findMetric(collect(t, reader), "guard.duration_ms")
	if found == nil {
		t.Fatal("guard.duration_ms not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", found.Data)
	}

	var count uint64
	var sum float64
	for _, dp := range hist.DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	if count != 2 || sum != 200 {
		t.Errorf("count = %d, sum = %v; want 2, 200", count, sum)
	}
	if len(hist.DataPoints) != 2 {
		t.Errorf("expected separate series for success and error, got %d", len(hist.DataPoints))
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordCacheLookup(context.Background(), "cms", "durable", true)
		}()
	}
	wg.Wait()

	if got := counterTotal(t, collect(t, reader), "cache.hits"); got != n {
		t.Errorf("cache.hits = %d, want %d", got, n)
	}
}

func TestNopMetrics_NoPanic(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()
	m.RecordCacheLookup(ctx, "ai", "fast", true)
	m.RecordCacheSet(ctx, "ai", "fast", false)
	m.RecordCacheError(ctx, "set", "fast")
	m.RecordRetry(ctx, "ai", "timeout")
	m.RecordFailure(ctx, "ai", "timeout")
	m.RecordRejected(ctx, "ai")
	m.RecordCall(ctx, "ai", time.Second, nil)
}
