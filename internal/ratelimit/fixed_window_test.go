package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := New(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterBlocksAfterLimit(t *testing.T) {
	limiter, _ := newLimiter(t, 2)
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retry := limiter.Allow(ctx, "ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry after = %v", retry)
	}
	if ok, _ := limiter.Allow(ctx, "ip-2"); !ok {
		t.Fatalf("other keys have their own quota")
	}
}

func TestFixedWindowLimiterNewSlotResets(t *testing.T) {
	limiter, _ := newLimiter(t, 1)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "k"); ok {
		t.Fatalf("second request in window should be blocked")
	}
	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, "k"); !ok {
		t.Fatalf("next window should pass")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	limiter, mr := newLimiter(t, 1)
	mr.Close()
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := New(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
