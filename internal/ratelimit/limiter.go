// Package ratelimit defines the rate limiter contract shared by the audit
// recorder and the HTTP edge. Implementations are constructed once per
// process and passed by reference, never held as ambient global state.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter answers whether one more event is allowed for a key under a
// sliding window of `limit` events per `window`.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// MemoryLimiter is an in-process sliding-window limiter. It is correct only
// for single-instance deployments; multi-instance deployments must use the
// Redis-backed limiter so counters are shared.
type MemoryLimiter struct {
	mu      sync.Mutex
	events  map[string][]time.Time
	now     func() time.Time // injectable for tests
	lastGC  time.Time
	maxIdle time.Duration
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		events:  make(map[string][]time.Time),
		now:     time.Now,
		maxIdle: 5 * time.Minute,
	}
}

// Allow records the event and returns true if the key is under its budget.
// Over-budget calls are not recorded, so a rejected caller does not extend
// its own penalty.
func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.events[key] = kept

	if len(kept) >= limit {
		return false, nil
	}

	l.events[key] = append(kept, now)
	l.gc(now)

	return true, nil
}

// gc drops keys with no recent activity so the map does not grow without
// bound across many admins.
func (l *MemoryLimiter) gc(now time.Time) {
	if now.Sub(l.lastGC) < l.maxIdle {
		return
	}
	l.lastGC = now

	cutoff := now.Add(-l.maxIdle)
	for key, events := range l.events {
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(l.events, key)
		}
	}
}

// SetClock overrides the time source. Tests only.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
