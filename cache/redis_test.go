package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestGlobEscape(t *testing.T) {
	tests := map[string]string{
		"eunsense:ai:": "eunsense:ai:",
		"img:a*b?":     `img:a\*b\?`,
		`cms:[x]\y`:    `cms:\[x\]\\y`,
	}
	for in, want := range tests {
		if got := globEscape(in); got != want {
			t.Errorf("globEscape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), RedisConfig{URL: "http://nope"}); err == nil {
		t.Error("expected a URL parse error")
	}
}

func TestRedisStore_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("eunsense-test-%d:", time.Now().UnixNano())
	s, err := NewRedisStore(ctx, RedisConfig{URL: url, Prefix: prefix})
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	c, _ := New(s, NewMemoryStore(nil))
	if !c.Set(ctx, "img:a", []byte("1"), time.Minute) || !c.Set(ctx, "img:b", []byte("2"), time.Minute) {
		t.Fatal("Set returned false")
	}
	if got, ok := c.Get(ctx, "img:a"); !ok || string(got) != "1" {
		t.Errorf("Get = %q, %v", got, ok)
	}
	n, err := c.DeleteByPrefix(ctx, "img:")
	if err != nil || n != 2 {
		t.Errorf("DeleteByPrefix() = %d, %v", n, err)
	}
	if _, ok, err := s.Get(ctx, "img:a"); ok || err != nil {
		t.Errorf("Get after delete = %v, %v", ok, err)
	}
}
