package resilience

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dlwpdl/eunsense-automation-sub000/observe"
)

// fakeClock is a manually advanced clock shared by the tests in this package.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances the clock instead of blocking.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func newTestLimiter(clock *fakeClock, limits map[string]Limit) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{Limits: limits}, WithClock(clock.Now), WithPollSleeper(clock.Sleep))
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})

	if rl.config.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", rl.config.PollInterval)
	}
	want := DefaultLimits()
	for service, l := range want {
		got, ok := rl.Limit(service)
		if !ok || got != l {
			t.Errorf("Limit(%q) = %v, %v; want %v", service, got, ok, l)
		}
	}
	if got := rl.Services(); !slices.Equal(got, []string{"ai", "cms", "images", "trends"}) {
		t.Errorf("Services() = %v", got)
	}
}

func TestRateLimiter_WindowBoundary(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"ai": {MaxRequests: 3, Window: 60 * time.Second}})

	for i := 0; i < 3; i++ {
		if !rl.Admit("ai") {
			t.Fatalf("Admit #%d = false, want true", i+1)
		}
		clock.Advance(10 * time.Second)
	}

	if rl.Admit("ai") {
		t.Fatal("fourth Admit within window = true, want false")
	}

	clock.Advance(61 * time.Second)
	if !rl.Admit("ai") {
		t.Error("Admit after window elapsed = false, want true")
	}
}

func TestRateLimiter_RejectedNotRecorded(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"cms": {MaxRequests: 1, Window: time.Minute}})

	if !rl.Admit("cms") {
		t.Fatal("first Admit = false")
	}
	for i := 0; i < 5; i++ {
		if rl.Admit("cms") {
			t.Fatal("Admit over limit = true")
		}
	}

	count, _, _ := rl.Usage("cms")
	if count != 1 {
		t.Errorf("Usage count = %d, want 1", count)
	}

	clock.Advance(time.Minute + time.Millisecond)
	if !rl.Admit("cms") {
		t.Error("rejections should not extend the window")
	}
}

func TestRateLimiter_ExactWindowEdgeExpires(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"ai": {MaxRequests: 1, Window: time.Minute}})

	rl.Admit("ai")
	clock.Advance(time.Minute)

	if !rl.Admit("ai") {
		t.Error("a timestamp exactly one window old should no longer count")
	}
}

func TestRateLimiter_ServicesIndependent(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{
		"ai":     {MaxRequests: 1, Window: time.Minute},
		"images": {MaxRequests: 1, Window: time.Hour},
	})

	if !rl.Admit("ai") || !rl.Admit("images") {
		t.Fatal("first admits should succeed")
	}
	if rl.Admit("ai") || rl.Admit("images") {
		t.Fatal("second admits should fail")
	}

	clock.Advance(2 * time.Minute)
	if !rl.Admit("ai") {
		t.Error("ai window should have elapsed")
	}
	if rl.Admit("images") {
		t.Error("images window should still be full")
	}
}

func TestRateLimiter_UnknownServiceAdmitted(t *testing.T) {
	rl := newTestLimiter(newFakeClock(), map[string]Limit{"ai": {MaxRequests: 1, Window: time.Minute}})

	for i := 0; i < 100; i++ {
		if !rl.Admit("sheets") {
			t.Fatal("unconfigured service should always be admitted")
		}
	}
	if _, _, ok := rl.Usage("sheets"); ok {
		t.Error("Usage for unconfigured service should report ok=false")
	}
}

func TestRateLimiter_WaitUntilAdmitted(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"trends": {MaxRequests: 1, Window: 5 * time.Second}})

	rl.Admit("trends")

	start := clock.Now()
	if !rl.WaitUntilAdmitted(context.Background(), "trends", 10*time.Second) {
		t.Fatal("WaitUntilAdmitted = false, want true")
	}
	if waited := clock.Now().Sub(start); waited < 5*time.Second || waited > 6*time.Second {
		t.Errorf("waited %v, want about 5s", waited)
	}
}

func TestRateLimiter_WaitUntilAdmittedGivesUp(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"trends": {MaxRequests: 1, Window: time.Hour}})

	rl.Admit("trends")

	start := clock.Now()
	if rl.WaitUntilAdmitted(context.Background(), "trends", 3*time.Second) {
		t.Fatal("WaitUntilAdmitted = true, want false")
	}
	if waited := clock.Now().Sub(start); waited != 3*time.Second {
		t.Errorf("waited %v, want exactly maxWait", waited)
	}
}

func TestRateLimiter_WaitUntilAdmittedCancelled(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"ai": {MaxRequests: 1, Window: time.Hour}})
	rl.Admit("ai")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if rl.WaitUntilAdmitted(ctx, "ai", time.Minute) {
		t.Error("WaitUntilAdmitted on cancelled ctx = true, want false")
	}
}

func TestRateLimiter_Execute(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"cms": {MaxRequests: 2, Window: time.Minute}})

	var calls int
	op := func(ctx context.Context) error {
		calls++
		return nil
	}

	for i := 0; i < 2; i++ {
		if err := rl.Execute(context.Background(), "cms", op); err != nil {
			t.Fatalf("Execute #%d error = %v", i+1, err)
		}
	}
	if err := rl.Execute(context.Background(), "cms", op); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Execute over limit = %v, want ErrRateLimitExceeded", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRateLimiter_ExecuteWaitOnLimit(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{
		Limits:      map[string]Limit{"ai": {MaxRequests: 1, Window: 2 * time.Second}},
		WaitOnLimit: true,
		MaxWait:     5 * time.Second,
	}, WithClock(clock.Now), WithPollSleeper(clock.Sleep))

	rl.Admit("ai")
	if err := rl.Execute(context.Background(), "ai", func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Execute with wait error = %v", err)
	}
}

func TestRateLimited(t *testing.T) {
	clock := newFakeClock()
	rl := newTestLimiter(clock, map[string]Limit{"images": {MaxRequests: 1, Window: time.Hour}})

	fn := func(ctx context.Context) (string, error) {
		return "https://images.example/1.jpg", nil
	}

	got, err := RateLimited(context.Background(), rl, "images", fn)
	if err != nil || got != "https://images.example/1.jpg" {
		t.Fatalf("RateLimited() = %q, %v", got, err)
	}

	got, err = RateLimited(context.Background(), rl, "images", fn)
	if !errors.Is(err, ErrRateLimitExceeded) || got != "" {
		t.Errorf("RateLimited() = %q, %v; want ErrRateLimitExceeded", got, err)
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := newTestLimiter(newFakeClock(), map[string]Limit{"ai": {MaxRequests: 1, Window: time.Hour}})
	rl.Admit("ai")
	rl.Reset("ai")

	if !rl.Admit("ai") {
		t.Error("Admit after Reset = false, want true")
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := newTestLimiter(newFakeClock(), map[string]Limit{"ai": {MaxRequests: 50, Window: time.Minute}})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Admit("ai") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 50 {
		t.Errorf("admitted = %d, want 50", got)
	}
}

func TestRateLimiter_LogsUnconfiguredServiceOnce(t *testing.T) {
	var buf bytes.Buffer
	rl := NewRateLimiter(RateLimiterConfig{Limits: map[string]Limit{}},
		WithLimiterLogger(observe.NewLoggerWithWriter("debug", &buf)))

	for i := 0; i < 3; i++ {
		if !rl.Admit("translate") {
			t.Fatal("unconfigured service should be admitted")
		}
	}
	if n := bytes.Count(buf.Bytes(), []byte("no rate limit configured")); n != 1 {
		t.Errorf("log lines = %d, want 1:\n%s", n, buf.String())
	}
}
