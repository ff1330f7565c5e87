package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta describes one guarded external call for telemetry purposes.
type CallMeta struct {
	Service       string // Rate-limited service name (required)
	Operation     string // Provider operation, e.g. "generate" (optional)
	Key           string // Cache key (optional)
	CorrelationID string // Per-call identifier (optional)
}

// SpanName returns the deterministic span name for this call.
// Format: guard.<service>.<operation> or guard.<service>
func (m CallMeta) SpanName() string {
	if m.Operation != "" {
		return "guard." + m.Service + "." + m.Operation
	}
	return "guard." + m.Service
}

// Fields returns the log fields identifying this call.
func (m CallMeta) Fields() []Field {
	fields := []Field{{Key: "service", Value: m.Service}}
	if m.Operation != "" {
		fields = append(fields, Field{Key: "operation", Value: m.Operation})
	}
	if m.Key != "" {
		fields = append(fields, Field{Key: "cache_key", Value: m.Key})
	}
	if m.CorrelationID != "" {
		fields = append(fields, Field{Key: "correlation_id", Value: m.CorrelationID})
	}
	return fields
}

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a guarded call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording err and any extra attributes.
	EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with call metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("service", meta.Service),
		attribute.Bool("call.error", false),
	}
	if meta.Operation != "" {
		attrs = append(attrs, attribute.String("call.operation", meta.Operation))
	}
	if meta.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", meta.Key))
	}
	if meta.CorrelationID != "" {
		attrs = append(attrs, attribute.String("call.correlation_id", meta.CorrelationID))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("call.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a Tracer whose spans are never recorded.
func NopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
