package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRateLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	limiter := NewRateLimiter(client, zap.NewNop())

	return limiter, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	limiter, _, cleanup := setupTestRateLimiter(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "admin-1:approve", 5, time.Minute)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter, _, cleanup := setupTestRateLimiter(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow(ctx, "admin-1:approve", 3, time.Minute)
		if !allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}

	allowed, err := limiter.Allow(ctx, "admin-1:approve", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("call over the limit should be blocked")
	}
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	limiter, _, cleanup := setupTestRateLimiter(t)
	defer cleanup()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Allow(ctx, "admin-1:reject", 2, time.Minute)
	}

	allowed, _ := limiter.Allow(ctx, "admin-2:reject", 2, time.Minute)
	if !allowed {
		t.Fatal("admin-2 should have its own budget")
	}
}

func TestRateLimiter_DifferentLimitsPerCall(t *testing.T) {
	limiter, _, cleanup := setupTestRateLimiter(t)
	defer cleanup()

	ctx := context.Background()

	// The same key checked against a tighter budget blocks sooner.
	for i := 0; i < 2; i++ {
		limiter.Allow(ctx, "admin-1:bulk_approve", 5, time.Minute)
	}

	allowed, _ := limiter.Allow(ctx, "admin-1:bulk_approve", 2, time.Minute)
	if allowed {
		t.Fatal("tighter budget should already be exhausted")
	}
}
