package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/metrics"
	"github.com/clubmatch/clubmatch/internal/ratelimit"
)

// RateLimitMiddleware enforces a request budget per key at the HTTP edge.
// The keyFunc extracts the budget key from the request (admin ID or client
// IP). A nil limiter or an empty key disables the check for that request.
func RateLimitMiddleware(limiter ratelimit.Limiter, logger *zap.Logger, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.Warn("edge rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				metrics.RecordRateLimitRejection("http")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(envelope{
					Success: false,
					Error:   "rate limit exceeded, retry later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminKeyFunc extracts the admin identity from the X-Admin-ID header.
func AdminKeyFunc(r *http.Request) string {
	if adminID := r.Header.Get("X-Admin-ID"); adminID != "" {
		return "admin:" + adminID
	}
	return ""
}

// IPKeyFunc extracts the client IP for rate limiting.
func IPKeyFunc(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return "ip:" + ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + r.RemoteAddr
}
