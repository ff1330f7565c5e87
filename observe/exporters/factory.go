// Package exporters builds OpenTelemetry span exporters and metric readers
// by name.
//
// Names: "stdout" writes to os.Stdout, "otlp" ships over gRPC to the endpoint
// in the standard OTEL_EXPORTER_OTLP_* variables, "prometheus" (metrics only)
// serves a scrape handler, and "none" or "" discards.
package exporters

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names.
const (
	Stdout     = "stdout"
	OTLP       = "otlp"
	Prometheus = "prometheus"
	None       = "none"
)

// MetricsReader pairs a metrics reader with the HTTP handler that exposes it,
// when the exporter is pull based.
type MetricsReader struct {
	Reader  sdkmetric.Reader
	Handler http.Handler
}

type (
	traceFactory  func(context.Context) (sdktrace.SpanExporter, error)
	metricFactory func(context.Context) (MetricsReader, error)
)

var traceFactories = map[string]traceFactory{
	Stdout: func(context.Context) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	},
	OTLP: func(ctx context.Context) (sdktrace.SpanExporter, error) {
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	},
	None: func(context.Context) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	},
}

var metricFactories = map[string]metricFactory{
	Stdout: func(context.Context) (MetricsReader, error) {
		return periodic(stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout)))
	},
	OTLP: func(ctx context.Context) (MetricsReader, error) {
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return MetricsReader{}, err
		}
		return periodic(otlpmetricgrpc.New(ctx))
	},
	// Each reader owns its registry, so several substrates in one process
	// do not collide.
	Prometheus: func(context.Context) (MetricsReader, error) {
		registry := promclient.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return MetricsReader{}, err
		}
		return MetricsReader{
			Reader:  exp,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}, nil
	},
	None: func(context.Context) (MetricsReader, error) {
		return periodic(stdoutmetric.New(stdoutmetric.WithWriter(io.Discard)))
	},
}

// TracingNames lists the accepted tracing exporter names, excluding "".
func TracingNames() []string { return slices.Sorted(maps.Keys(traceFactories)) }

// MetricsNames lists the accepted metrics exporter names, excluding "".
func MetricsNames() []string { return slices.Sorted(maps.Keys(metricFactories)) }

// NewTracingExporter creates the span exporter registered under name.
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	f, ok := traceFactories[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown exporter: %q", name)
	}
	exp, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s trace exporter: %w", name, err)
	}
	return exp, nil
}

// NewMetricsReader creates the metrics reader registered under name.
func NewMetricsReader(ctx context.Context, name string) (MetricsReader, error) {
	f, ok := metricFactories[normalize(name)]
	if !ok {
		return MetricsReader{}, fmt.Errorf("unknown metrics exporter: %q", name)
	}
	r, err := f(ctx)
	if err != nil {
		return MetricsReader{}, fmt.Errorf("%s metrics exporter: %w", name, err)
	}
	return r, nil
}

func normalize(name string) string {
	if name == "" {
		return None
	}
	return name
}

func periodic(exp sdkmetric.Exporter, err error) (MetricsReader, error) {
	if err != nil {
		return MetricsReader{}, err
	}
	return MetricsReader{Reader: sdkmetric.NewPeriodicReader(exp)}, nil
}

func requireEndpoint(specific string) error {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || os.Getenv(specific) != "" {
		return nil
	}
	return fmt.Errorf("OTLP endpoint not configured: set OTEL_EXPORTER_OTLP_ENDPOINT or %s", specific)
}
