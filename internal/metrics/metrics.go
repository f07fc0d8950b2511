package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubmatch_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clubmatch_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubmatch_email_deliveries_total",
			Help: "Terminal email delivery outcomes by status",
		},
		[]string{"status"},
	)

	deliveryRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clubmatch_email_delivery_retries_total",
			Help: "Individual retry attempts across all sends",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubmatch_notifications_total",
			Help: "Notification orchestrations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	auditActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubmatch_audit_actions_total",
			Help: "Admin actions recorded in the audit ledger by action type",
		},
		[]string{"action_type"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubmatch_rate_limit_rejections_total",
			Help: "Calls rejected by a rate limiter, by scope",
		},
		[]string{"scope"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDelivery records a terminal delivery outcome
func RecordDelivery(status string) {
	deliveriesTotal.WithLabelValues(status).Inc()
}

// RecordDeliveryRetry records one retry attempt
func RecordDeliveryRetry() {
	deliveryRetriesTotal.Inc()
}

// RecordNotification records an orchestrated notification outcome
func RecordNotification(kind, outcome string) {
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordAuditAction records a written audit entry
func RecordAuditAction(actionType string) {
	auditActionsTotal.WithLabelValues(actionType).Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(scope string) {
	rateLimitRejections.WithLabelValues(scope).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
