package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newClockedLimiter() (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter()
	now := time.Now()
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestMemoryLimiterAllowsWithinLimit(t *testing.T) {
	l, _ := newClockedLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := l.Allow(ctx, "admin-1:approve", 5, time.Minute)
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i)
		}
	}
}

func TestMemoryLimiterBlocksOverLimit(t *testing.T) {
	l, _ := newClockedLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Allow(ctx, "admin-1:approve", 3, time.Minute)
	}

	allowed, err := l.Allow(ctx, "admin-1:approve", 3, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("4th call should be blocked")
	}
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	l, now := newClockedLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.Allow(ctx, "admin-1:bulk_approve", 5, time.Minute)
	}

	if allowed, _ := l.Allow(ctx, "admin-1:bulk_approve", 5, time.Minute); allowed {
		t.Fatal("6th call within the window should be blocked")
	}

	// One minute and one second later the window has passed.
	*now = now.Add(time.Minute + time.Second)
	if allowed, _ := l.Allow(ctx, "admin-1:bulk_approve", 5, time.Minute); !allowed {
		t.Fatal("call after the window should be allowed")
	}
}

func TestMemoryLimiterSeparateKeys(t *testing.T) {
	l, _ := newClockedLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		l.Allow(ctx, "admin-1:approve", 2, time.Minute)
	}

	if allowed, _ := l.Allow(ctx, "admin-2:approve", 2, time.Minute); !allowed {
		t.Fatal("admin-2 should have its own budget")
	}
	if allowed, _ := l.Allow(ctx, "admin-1:view", 2, time.Minute); !allowed {
		t.Fatal("a different action type should have its own budget")
	}
}

func TestMemoryLimiterRejectionsNotRecorded(t *testing.T) {
	l, now := newClockedLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		l.Allow(ctx, "admin-1:reject", 2, time.Minute)
	}

	// Hammering while blocked must not extend the penalty.
	for i := 0; i < 10; i++ {
		l.Allow(ctx, "admin-1:reject", 2, time.Minute)
	}

	*now = now.Add(time.Minute + time.Second)
	if allowed, _ := l.Allow(ctx, "admin-1:reject", 2, time.Minute); !allowed {
		t.Fatal("expected budget to recover after the original window")
	}
}
