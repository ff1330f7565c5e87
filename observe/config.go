package observe

import (
	"fmt"
	"io"
	"slices"

	"github.com/dlwpdl/eunsense-automation-sub000/observe/exporters"
)

// Config holds all configuration for the Observer.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|stdout|none
	SamplePct float64 // 0.0-1.0
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool
	Level   string // debug|info|warn|error
	Format  string // json|text

	// Writer receives log output.
	// Default: os.Stderr
	Writer io.Writer
}

var (
	logLevels  = []string{"", "debug", "info", "warn", "error"}
	logFormats = []string{"", FormatJSON, FormatText}
)

// Validate reports the first problem with c. Disabled sections are not checked.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	for _, check := range c.checks() {
		if check.enabled && !check.ok {
			return fmt.Errorf("%w: %s", check.err, check.got)
		}
	}
	return nil
}

type configCheck struct {
	enabled bool
	ok      bool
	err     error
	got     string
}

func (c *Config) checks() []configCheck {
	t, m, l := c.Tracing, c.Metrics, c.Logging
	return []configCheck{
		{t.Enabled, t.Exporter == "" || slices.Contains(exporters.TracingNames(), t.Exporter), ErrInvalidTracingExporter, fmt.Sprintf("%q", t.Exporter)},
		{t.Enabled, t.SamplePct >= 0 && t.SamplePct <= 1, ErrInvalidSamplePct, fmt.Sprintf("got %g", t.SamplePct)},
		{m.Enabled, m.Exporter == "" || slices.Contains(exporters.MetricsNames(), m.Exporter), ErrInvalidMetricsExporter, fmt.Sprintf("%q", m.Exporter)},
		{l.Enabled, slices.Contains(logLevels, l.Level), ErrInvalidLogLevel, fmt.Sprintf("%q", l.Level)},
		{l.Enabled, slices.Contains(logFormats, l.Format), ErrInvalidLogFormat, fmt.Sprintf("%q", l.Format)},
	}
}
