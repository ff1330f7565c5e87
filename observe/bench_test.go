package observe

import (
	"context"
	"errors"
	"io"
	"testing"
)

func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "benchmark message", Field{Key: "iteration", Value: i})
	}
}

// BenchmarkLogger_LevelFiltering measures overhead of filtered entries.
func BenchmarkLogger_LevelFiltering(b *testing.B) {
	logger := NewLoggerWithWriter("error", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "filtered debug")
		logger.Info(ctx, "filtered info")
	}
}

func BenchmarkMiddleware_Wrap(b *testing.B) {
	mw := NewMiddleware(NopTracer(), NopMetrics(), NewLoggerWithWriter("info", io.Discard))
	meta := CallMeta{Service: "ai", Operation: "generate", Key: "ai:topic:en"}
	ok := mw.Wrap(func(context.Context, CallMeta) error { return nil })
	failing := mw.Wrap(func(context.Context, CallMeta) error { return errors.New("timeout") })
	ctx := context.Background()

	b.Run("success", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = ok(ctx, meta)
		}
	})
	b.Run("error", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = failing(ctx, meta)
		}
	})
}

func BenchmarkCallMeta_SpanName(b *testing.B) {
	meta := CallMeta{Service: "images", Operation: "search"}
	for i := 0; i < b.N; i++ {
		_ = meta.SpanName()
	}
}
