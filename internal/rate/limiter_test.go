package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "ratelimit", nil), mr
}

func TestAdmitsExactlyLimitPerWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	const limit = 5
	for i := 0; i < limit; i++ {
		allowed, remaining := limiter.IsAllowed(ctx, "caller", limit, time.Minute)
		if !allowed {
			t.Fatalf("request %d rejected before the limit", i+1)
		}
		if remaining != limit-i-1 {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, limit-i-1, remaining)
		}
	}

	allowed, remaining := limiter.IsAllowed(ctx, "caller", limit, time.Minute)
	if allowed {
		t.Fatal("request above the limit was admitted")
	}
	if remaining != 0 {
		t.Fatalf("expected remaining=0 when rejected, got %d", remaining)
	}
}

func TestRejectionDoesNotGrowCounter(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	const limit = 2
	for i := 0; i < limit+10; i++ {
		limiter.IsAllowed(ctx, "caller", limit, time.Minute)
	}

	stored, err := mr.Get("ratelimit:60:caller")
	if err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	if stored != "2" {
		t.Fatalf("counter must stop at the limit, got %s", stored)
	}
}

func TestWindowExpiryResetsCount(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	const limit = 3
	for i := 0; i < limit; i++ {
		limiter.IsAllowed(ctx, "caller", limit, time.Minute)
	}
	if allowed, _ := limiter.IsAllowed(ctx, "caller", limit, time.Minute); allowed {
		t.Fatal("expected rejection at the limit")
	}

	mr.FastForward(61 * time.Second)

	allowed, remaining := limiter.IsAllowed(ctx, "caller", limit, time.Minute)
	if !allowed {
		t.Fatal("expected fresh window after TTL expiry")
	}
	if remaining != limit-1 {
		t.Fatalf("expected remaining %d in fresh window, got %d", limit-1, remaining)
	}
}

func TestLaterHitsDoNotExtendWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	limiter.IsAllowed(ctx, "caller", 100, time.Minute)
	mr.FastForward(30 * time.Second)
	limiter.IsAllowed(ctx, "caller", 100, time.Minute)

	ttl := mr.TTL("ratelimit:60:caller")
	if ttl > 30*time.Second {
		t.Fatalf("second hit must not extend the window, ttl=%v", ttl)
	}
}

func TestSeparateWindowsCountIndependently(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	limiter.IsAllowed(ctx, "caller", 10, time.Minute)
	limiter.IsAllowed(ctx, "caller", 10, time.Hour)

	if got := limiter.Remaining(ctx, "caller", 10, time.Minute); got != 9 {
		t.Fatalf("minute window remaining: expected 9, got %d", got)
	}
	if got := limiter.Remaining(ctx, "caller", 10, time.Hour); got != 9 {
		t.Fatalf("hour window remaining: expected 9, got %d", got)
	}
}

func TestRemainingDoesNotConsume(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	if got := limiter.Remaining(ctx, "caller", 10, time.Minute); got != 10 {
		t.Fatalf("expected full budget, got %d", got)
	}
	if got := limiter.Remaining(ctx, "caller", 10, time.Minute); got != 10 {
		t.Fatalf("Remaining must not consume budget, got %d", got)
	}
}

func TestFailsOpenWhenBackendDown(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	allowed, remaining := limiter.IsAllowed(context.Background(), "caller", 7, time.Minute)
	if !allowed {
		t.Fatal("limiter must fail open when the backend is unreachable")
	}
	if remaining != 7 {
		t.Fatalf("fail-open must report the full limit, got %d", remaining)
	}

	if got := limiter.Remaining(context.Background(), "caller", 7, time.Minute); got != 7 {
		t.Fatalf("Remaining must fail open with the full limit, got %d", got)
	}
}

func TestHundredPerMinuteScenario(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		allowed, _ := limiter.IsAllowed(ctx, "203.0.113.9", 100, time.Minute)
		if !allowed {
			t.Fatalf("request %d of 100 was rejected", i+1)
		}
	}

	allowed, remaining := limiter.IsAllowed(ctx, "203.0.113.9", 100, time.Minute)
	if allowed || remaining != 0 {
		t.Fatalf("request 101 must be rejected with remaining=0, got allowed=%v remaining=%d", allowed, remaining)
	}
}
