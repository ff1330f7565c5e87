package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// CallFunc is one guarded external call.
type CallFunc func(ctx context.Context, meta CallMeta) error

// Annotator extracts extra span attributes and log fields from a failure.
type Annotator func(err error) ([]attribute.KeyValue, []Field)

// Middleware wraps calls with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe CallFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	annotate Annotator
	now      func() time.Time
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithAnnotator attaches failure details such as classification to spans and logs.
func WithAnnotator(a Annotator) MiddlewareOption {
	return func(m *Middleware) {
		m.annotate = a
	}
}

// NewMiddleware creates a new Middleware with the given observability components.
// Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, opts ...MiddlewareOption) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	m := &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap wraps a CallFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn CallFunc) CallFunc {
	return func(ctx context.Context, meta CallMeta) error {
		if meta.Service == "" {
			return ErrMissingService
		}

		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := m.now()

		err := fn(ctx, meta)

		duration := m.now().Sub(start)

		var attrs []attribute.KeyValue
		fields := append(meta.Fields(), Field{Key: "duration_ms", Value: float64(duration.Milliseconds())})
		if err != nil && m.annotate != nil {
			extraAttrs, extraFields := m.annotate(err)
			attrs = extraAttrs
			fields = append(fields, extraFields...)
		}

		m.tracer.EndSpan(span, err, attrs...)
		m.metrics.RecordCall(ctx, meta.Service, duration, err)

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			m.logger.Error(ctx, "external call failed", fields...)
		} else {
			m.logger.Debug(ctx, "external call completed", fields...)
		}

		return err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, opts ...MiddlewareOption) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), opts...), nil
}
