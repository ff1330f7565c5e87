package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracer(tp.Tracer("test")), recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestCallMeta_SpanName(t *testing.T) {
	tests := []struct {
		meta CallMeta
		want string
	}{
		{CallMeta{Service: "ai", Operation: "generate"}, "guard.ai.generate"},
		{CallMeta{Service: "cms"}, "guard.cms"},
	}
	for _, tt := range tests {
		if got := tt.meta.SpanName(); got != tt.want {
			t.Errorf("SpanName() = %q, want %q", got, tt.want)
		}
	}
}

func TestCallMeta_Fields(t *testing.T) {
	fields := CallMeta{Service: "images", Key: "img:solar panels", CorrelationID: "c-1"}.Fields()

	got := map[string]any{}
	for _, f := range fields {
		got[f.Key] = f.Value
	}
	if got["service"] != "images" || got["cache_key"] != "img:solar panels" || got["correlation_id"] != "c-1" {
		t.Errorf("Fields() = %v", fields)
	}
	if _, ok := got["operation"]; ok {
		t.Error("empty operation should be omitted")
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	tr, recorder := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), CallMeta{
		Service:       "ai",
		Operation:     "generate",
		Key:           "ai:topic-x:en",
		CorrelationID: "abc",
	})
	tr.EndSpan(span, nil, attribute.Int("call.attempts", 1))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "guard.ai.generate" {
		t.Errorf("span name = %q", s.Name())
	}

	attrs := attrMap(s.Attributes())
	if v := attrs["service"]; v.AsString() != "ai" {
		t.Errorf("service = %v", v)
	}
	if v := attrs["cache.key"]; v.AsString() != "ai:topic-x:en" {
		t.Errorf("cache.key = %v", v)
	}
	if v := attrs["call.correlation_id"]; v.AsString() != "abc" {
		t.Errorf("call.correlation_id = %v", v)
	}
	if v := attrs["call.attempts"]; v.AsInt64() != 1 {
		t.Errorf("call.attempts = %v", v)
	}
	if v := attrs["call.error"]; v.AsBool() {
		t.Error("call.error should be false")
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_ErrorRecording(t *testing.T) {
	tr, recorder := newRecordingTracer()

	_, span := tr.StartSpan(context.Background(), CallMeta{Service: "cms"})
	tr.EndSpan(span, errors.New("rest_forbidden"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "rest_forbidden" {
		t.Errorf("status = %+v", s.Status())
	}
	if v := attrMap(s.Attributes())["call.error"]; !v.AsBool() {
		t.Error("call.error should be true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected an exception event")
	}
}

func TestTracer_ContextPropagation(t *testing.T) {
	tr, recorder := newRecordingTracer()

	ctx, parent := tr.StartSpan(context.Background(), CallMeta{Service: "ai"})
	_, child := tr.StartSpan(ctx, CallMeta{Service: "images"})
	tr.EndSpan(child, nil)
	tr.EndSpan(parent, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("child span should reference parent")
	}
}

func TestNopTracer_NoPanic(t *testing.T) {
	tr := NopTracer()
	_, span := tr.StartSpan(context.Background(), CallMeta{Service: "ai"})
	tr.EndSpan(span, errors.New("ignored"))
}
