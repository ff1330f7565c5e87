package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/dlwpdl/eunsense-automation-sub000/observe/exporters"
)

// Observer provides access to telemetry primitives.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Shutdown must honor cancellation/deadlines.
//   - Errors: Shutdown is idempotent and joins every provider's error.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// MetricsHandler serves the Prometheus scrape endpoint.
	// It is nil unless the prometheus exporter is configured.
	MetricsHandler() http.Handler

	// Shutdown flushes and stops the trace and metric providers.
	Shutdown(ctx context.Context) error
}

// Logger is a minimal structured logging interface.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: logging is best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that attaches fields to every entry.
	With(fields ...Field) Logger
}

// Field is one structured log attribute.
type Field struct {
	Key   string
	Value any
}

type observer struct {
	tracer  trace.Tracer
	meter   metric.Meter
	logger  Logger
	handler http.Handler

	mu       sync.Mutex
	shutdown []func(context.Context) error
}

// NewObserver validates cfg and starts the enabled telemetry providers.
// Disabled tracing and metrics fall back to no-op implementations.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
		meter:  noop.NewMeterProvider().Meter(cfg.ServiceName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		if err := o.startTracing(ctx, cfg, res); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		if err := o.startMetrics(ctx, cfg, res); err != nil {
			_ = o.Shutdown(ctx)
			return nil, err
		}
	}
	if cfg.Logging.Enabled {
		o.logger = newFormattedLogger(cfg.Logging)
	}
	return o, nil
}

func (o *observer) startTracing(ctx context.Context, cfg Config, res *resource.Resource) error {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
	if err != nil {
		return fmt.Errorf("observe: tracing: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.Tracing.SamplePct)),
		sdktrace.WithBatcher(exp),
	)
	otel.SetTracerProvider(tp)

	o.tracer = tp.Tracer(cfg.ServiceName)
	o.shutdown = append(o.shutdown, named("tracer", tp.Shutdown))
	return nil
}

func (o *observer) startMetrics(ctx context.Context, cfg Config, res *resource.Resource) error {
	r, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter)
	if err != nil {
		return fmt.Errorf("observe: metrics: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(r.Reader))
	otel.SetMeterProvider(mp)

	o.meter = mp.Meter(cfg.ServiceName)
	o.handler = r.Handler
	o.shutdown = append(o.shutdown, named("meter", mp.Shutdown))
	return nil
}

// sampler maps a sample fraction onto a parent-independent sampler.
func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= 1:
		return sdktrace.AlwaysSample()
	case pct <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(pct)
	}
}

func named(what string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s shutdown: %w", what, err)
		}
		return nil
	}
}

func (o *observer) Tracer() trace.Tracer         { return o.tracer }
func (o *observer) Meter() metric.Meter          { return o.meter }
func (o *observer) Logger() Logger               { return o.logger }
func (o *observer) MetricsHandler() http.Handler { return o.handler }

// Shutdown stops providers in reverse start order.
func (o *observer) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	fns := o.shutdown
	o.shutdown = nil
	o.mu.Unlock()

	var errs []error
	for _, fn := range slices.Backward(fns) {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
