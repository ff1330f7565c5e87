package observe_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

func ExampleNewObserver() {
	cfg := observe.Config{
		ServiceName: "eunsense",
		Version:     "1.0.0",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "none"},
		Metrics:     observe.MetricsConfig{Enabled: false},
		Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
	}

	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() {
		_ = obs.Shutdown(ctx)
	}()

	fmt.Println("Observer created successfully")
	// Output:
	// Observer created successfully
}

func ExampleNewObserver_validation() {
	_, err := observe.NewObserver(context.Background(), observe.Config{})
	if errors.Is(err, observe.ErrMissingServiceName) {
		fmt.Println("Caught: missing service name")
	}
	// Output:
	// Caught: missing service name
}

func ExampleCallMeta_SpanName() {
	fmt.Println(observe.CallMeta{Service: "ai", Operation: "generate"}.SpanName())
	fmt.Println(observe.CallMeta{Service: "trends"}.SpanName())
	// Output:
	// guard.ai.generate
	// guard.trends
}

func ExampleLogger_With() {
	var buf bytes.Buffer
	logger := observe.NewLoggerWithWriter("info", &buf).With(observe.Field{Key: "service", Value: "cms"})

	logger.Info(context.Background(), "term resolved", observe.Field{Key: "token", Value: "secret-value"})

	out := buf.String()
	fmt.Println("has service:", strings.Contains(out, `"service":"cms"`))
	fmt.Println("token redacted:", !strings.Contains(out, "secret-value"))
	// Output:
	// has service: true
	// token redacted: true
}

func ExampleMiddleware_Wrap() {
	mw := observe.NewMiddleware(nil, nil, nil)

	call := mw.Wrap(func(ctx context.Context, meta observe.CallMeta) error {
		fmt.Println("calling", meta.Service)
		return nil
	})

	if err := call(context.Background(), observe.CallMeta{Service: "images", Key: "img:solar"}); err != nil {
		fmt.Println("Error:", err)
	}
	// Output:
	// calling images
}

func ExampleParseLevel() {
	for _, s := range []string{"debug", "warn", "unknown"} {
		fmt.Printf("%s -> %s\n", s, observe.ParseLevel(s))
	}
	// Output:
	// debug -> DEBUG
	// warn -> WARN
	// unknown -> INFO
}
