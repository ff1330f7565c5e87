package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records substrate activity.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: must honor cancellation/deadlines and return quickly.
//   - Errors: implementations must not panic.
type Metrics interface {
	// RecordCacheLookup counts one Get by category; tier is empty on a miss.
	RecordCacheLookup(ctx context.Context, category, tier string, hit bool)

	// RecordCacheSet counts one Set by category and destination tier.
	RecordCacheSet(ctx context.Context, category, tier string, stored bool)

	// RecordCacheError counts a recovered storage failure.
	RecordCacheError(ctx context.Context, op, tier string)

	// RecordRetry counts one scheduled retry.
	RecordRetry(ctx context.Context, service, classification string)

	// RecordFailure counts a call that failed after retry handling.
	RecordFailure(ctx context.Context, service, classification string)

	// RecordRejected counts a call refused by the rate limiter.
	RecordRejected(ctx context.Context, service string)

	// RecordCall records the duration of one guarded call.
	RecordCall(ctx context.Context, service string, duration time.Duration, err error)
}

// metricsImpl is the OpenTelemetry implementation of Metrics.
type metricsImpl struct {
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	cacheSets    metric.Int64Counter
	cacheErrors  metric.Int64Counter
	retries      metric.Int64Counter
	failures     metric.Int64Counter
	rejected     metric.Int64Counter
	callDuration metric.Float64Histogram
}

// NewMetrics creates the substrate instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.cacheHits, "cache.hits", "Cache lookups served from a tier", "{lookup}"},
		{&m.cacheMisses, "cache.misses", "Cache lookups that found nothing fresh", "{lookup}"},
		{&m.cacheSets, "cache.sets", "Cache writes by destination tier", "{write}"},
		{&m.cacheErrors, "cache.errors", "Recovered cache storage failures", "{error}"},
		{&m.retries, "retry.attempts", "Retries scheduled after a retryable failure", "{retry}"},
		{&m.failures, "retry.failures", "Calls that failed after retry handling", "{call}"},
		{&m.rejected, "ratelimit.rejected", "Calls refused by the rate limiter", "{call}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	hist, err := meter.Float64Histogram("guard.duration_ms",
		metric.WithDescription("Guarded call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.callDuration = hist

	return m, nil
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, category, tier string, hit bool) {
	if hit {
		m.cacheHits.Add(ctx, 1, metric.WithAttributes(
			attribute.String("cache.category", category),
			attribute.String("cache.tier", tier),
		))
		return
	}
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.category", category)))
}

func (m *metricsImpl) RecordCacheSet(ctx context.Context, category, tier string, stored bool) {
	m.cacheSets.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.category", category),
		attribute.String("cache.tier", tier),
		attribute.Bool("cache.stored", stored),
	))
}

func (m *metricsImpl) RecordCacheError(ctx context.Context, op, tier string) {
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.op", op),
		attribute.String("cache.tier", tier),
	))
}

func (m *metricsImpl) RecordRetry(ctx context.Context, service, classification string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("error.classification", classification),
	))
}

func (m *metricsImpl) RecordFailure(ctx context.Context, service, classification string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("error.classification", classification),
	))
}

func (m *metricsImpl) RecordRejected(ctx context.Context, service string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

func (m *metricsImpl) RecordCall(ctx context.Context, service string, duration time.Duration, err error) {
	m.callDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("service", service),
		attribute.Bool("error", err != nil),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordCacheLookup(context.Context, string, string, bool)  {}
func (noopMetrics) RecordCacheSet(context.Context, string, string, bool)     {}
func (noopMetrics) RecordCacheError(context.Context, string, string)         {}
func (noopMetrics) RecordRetry(context.Context, string, string)              {}
func (noopMetrics) RecordFailure(context.Context, string, string)            {}
func (noopMetrics) RecordRejected(context.Context, string)                   {}
func (noopMetrics) RecordCall(context.Context, string, time.Duration, error) {}
