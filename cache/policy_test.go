package cache

import (
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	tests := map[string]time.Duration{
		CategoryAI:     7 * 24 * time.Hour,
		CategoryImages: 24 * time.Hour,
		CategoryTrends: time.Hour,
		CategoryCMS:    30 * 24 * time.Hour,
		CategoryOther:  0,
	}
	for category, want := range tests {
		if got := p.TTL(category); got != want {
			t.Errorf("TTL(%q) = %v, want %v", category, got, want)
		}
		if p.ShouldCache(category) != (want > 0) {
			t.Errorf("ShouldCache(%q) = %v", category, p.ShouldCache(category))
		}
	}
}

func TestNoCachePolicy(t *testing.T) {
	p := NoCachePolicy()
	for _, category := range Categories {
		if p.ShouldCache(category) {
			t.Errorf("ShouldCache(%q) should be false", category)
		}
	}
}

func TestPolicy_EffectiveTTL(t *testing.T) {
	p := DefaultPolicy()
	p.MaxTTL = 14 * 24 * time.Hour
	p.DefaultTTL = time.Minute

	tests := []struct {
		name     string
		category string
		override time.Duration
		want     time.Duration
	}{
		{"category default", CategoryTrends, 0, time.Hour},
		{"negative uses default", CategoryImages, -time.Second, 24 * time.Hour},
		{"override wins", CategoryAI, 2 * time.Hour, 2 * time.Hour},
		{"clamped to max", CategoryCMS, 0, 14 * 24 * time.Hour},
		{"unknown category", "misc", 0, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.EffectiveTTL(tt.category, tt.override); got != tt.want {
				t.Errorf("EffectiveTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_WithCopies(t *testing.T) {
	base := DefaultPolicy()
	changed := base.With(CategoryTrends, 30*time.Minute)

	if changed.TTL(CategoryTrends) != 30*time.Minute {
		t.Error("With should set the category TTL")
	}
	if base.TTL(CategoryTrends) != time.Hour {
		t.Error("With must not modify the receiver")
	}
}
