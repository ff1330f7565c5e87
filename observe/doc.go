// Package observe provides logging, metrics and tracing for the substrate.
//
// Logging is structured through log/slog: JSON for machines, a tint handler
// for terminals. Metrics and traces use OpenTelemetry with exporters chosen
// by name. Secret-bearing field keys are always redacted.
package observe
