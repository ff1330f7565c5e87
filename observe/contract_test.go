package observe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestObserverContract_Noops(t *testing.T) {
	cfg := Config{
		ServiceName: "observe-test",
		Tracing:     TracingConfig{Enabled: false, Exporter: "none"},
		Metrics:     MetricsConfig{Enabled: false, Exporter: "none"},
		Logging:     LoggingConfig{Enabled: false, Level: "info"},
	}

	obs, err := NewObserver(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}
	if _, err := MiddlewareFromObserver(obs); err != nil {
		t.Fatalf("MiddlewareFromObserver failed: %v", err)
	}
}

func TestLoggerContract_NoPanicWithNilContext(t *testing.T) {
	logger := NewLoggerWithWriter("debug", discard{})
	//nolint:staticcheck // nil context is tolerated by contract
	logger.Info(nil, "nil context")
}

func TestMetricsContract_NoPanic(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.RecordCall(context.Background(), "ai", -time.Millisecond, errors.New("negative duration"))
}

func TestTracerContract_NilAttrs(t *testing.T) {
	tr, _ := newRecordingTracer()
	_, span := tr.StartSpan(context.Background(), CallMeta{Service: "ai"})
	tr.EndSpan(span, nil, nil...)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
