package observe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Log output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel parses a string log level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// slogLogger adapts a *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// NewLogger creates a JSON logger on stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger writing to w.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	return NewSlogLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// NewTextLogger creates a human readable logger writing to w.
// Colors are disabled unless w is a terminal.
func NewTextLogger(level string, w io.Writer) Logger {
	return NewSlogLogger(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	}))
}

// NewSlogLogger wraps an arbitrary slog handler.
func NewSlogLogger(h slog.Handler) Logger {
	return &slogLogger{l: slog.New(h)}
}

func newFormattedLogger(cfg LoggingConfig) Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	if cfg.Format == FormatText {
		return NewTextLogger(cfg.Level, w)
	}
	return NewLoggerWithWriter(cfg.Level, w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func (s *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

// With returns a logger that adds fields to every entry.
func (s *slogLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return s
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = toAttr(f)
	}
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = toAttr(f)
	}
	s.l.LogAttrs(ctx, level, msg, attrs...)
}

func toAttr(f Field) slog.Attr {
	if isRedactedField(f.Key) {
		return slog.String(f.Key, "[REDACTED]")
	}
	if err, ok := f.Value.(error); ok {
		return slog.String(f.Key, err.Error())
	}
	return slog.Any(f.Key, f.Value)
}

// isRedactedField reports whether values under key must never be logged.
func isRedactedField(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range RedactedFields {
		if lower == strings.ToLower(k) {
			return true
		}
	}
	return false
}

// noopLogger discards everything.
type noopLogger struct{}

// NopLogger returns a Logger that discards all entries.
func NopLogger() Logger { return noopLogger{} }

func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (l noopLogger) With(...Field) Logger                  { return l }

var (
	_ Logger = (*slogLogger)(nil)
	_ Logger = noopLogger{}
)
