package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkTiered_GetHit(b *testing.B) {
	c := NewMemory()
	ctx := context.Background()
	c.Set(ctx, "img:beach", []byte("https://images.example/beach.jpg"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(ctx, "img:beach")
	}
}

func BenchmarkTiered_GetMiss(b *testing.B) {
	c := NewMemory()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(ctx, "img:none")
	}
}

func BenchmarkTiered_Set(b *testing.B) {
	for _, size := range []int{256, 50 * 1024, DefaultSizeThreshold} {
		b.Run(fmt.Sprintf("%dB", size), func(b *testing.B) {
			c := NewMemory()
			ctx := context.Background()
			value := bytes.Repeat([]byte("x"), size)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				c.Set(ctx, "ai:bench", value, time.Hour)
			}
		})
	}
}

func BenchmarkTiered_Parallel(b *testing.B) {
	c := NewMemory()
	ctx := context.Background()
	for i := 0; i < 16; i++ {
		c.Set(ctx, fmt.Sprintf("trends:%d", i), []byte("snapshot"), time.Hour)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(ctx, fmt.Sprintf("trends:%d", i%16))
			i++
		}
	})
}

func BenchmarkDefaultKeyer_Key(b *testing.B) {
	k := NewDefaultKeyer()
	input := map[string]any{"topic": "busan", "lang": "en", "opts": map[string]any{"tone": "casual"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = k.Key(CategoryAI, input)
	}
}

func BenchmarkCached_Hit(b *testing.B) {
	c := NewMemory()
	ctx := context.Background()
	SetValue(ctx, c, "cms:tag:go", term{ID: 1, Slug: "go"}, time.Hour)
	produce := func(context.Context) (term, error) { return term{}, nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Cached(ctx, c, "cms:tag:go", time.Hour, produce)
	}
}
