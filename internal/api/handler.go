package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/audit"
	"github.com/clubmatch/clubmatch/internal/db"
	"github.com/clubmatch/clubmatch/internal/export"
	"github.com/clubmatch/clubmatch/internal/mailer"
	"github.com/clubmatch/clubmatch/internal/notify"
	"github.com/clubmatch/clubmatch/internal/retry"
	"github.com/clubmatch/clubmatch/internal/template"
)

// Notifier drives lifecycle notifications. Satisfied by notify.Orchestrator.
type Notifier interface {
	NotifyApproval(ctx context.Context, req notify.Request) (*notify.ApprovalOutcome, error)
	NotifyRejection(ctx context.Context, req notify.Request) (*retry.Result, error)
	NotifyWelcome(ctx context.Context, req notify.Request) (*retry.Result, error)
	NotifyAdminFailures(ctx context.Context, adminEmail string, failures []template.Failure) (*retry.Result, error)
}

// Sender is the retried raw-email path. Satisfied by retry.Engine.
type Sender interface {
	Send(ctx context.Context, to string, msg *template.Message, maxRetries int) *retry.Result
}

// DeliveryStore exposes the delivery ledger reads and the failed-batch
// requeue. Satisfied by db.DeliveryLogRepository.
type DeliveryStore interface {
	List(ctx context.Context, limit, offset int, statusFilter string) ([]*db.DeliveryLog, error)
	FailedCount(ctx context.Context, since *time.Time) (int, error)
	MarkFailedForRetry(ctx context.Context, maxAge time.Duration) (*db.RetryBatchResult, error)
	Statistics(ctx context.Context, since, until *time.Time) (sent, failed, pending int, err error)
}

// AuditService is the audit trail front door. Satisfied by audit.Recorder.
type AuditService interface {
	LogAction(ctx context.Context, req audit.ActionRequest) (*db.AdminActivityLogEntry, error)
	GetActivityLog(ctx context.Context, filters db.AuditFilters) ([]*db.AdminActivityLogEntry, error)
	GetTimeline(ctx context.Context, targetID string) ([]*db.AdminActivityLogEntry, error)
	GetSummary(ctx context.Context, filters db.AuditFilters) (*db.AuditSummary, error)
}

// ApprovalCounter derives approval/rejection totals from the audit ledger.
// Satisfied by db.AuditRepository.
type ApprovalCounter interface {
	ApprovalCounts(ctx context.Context, since, until *time.Time) (approvals, rejections int, err error)
}

// Exporter requests export files from the external export service.
type Exporter interface {
	Export(ctx context.Context, opts export.Options) (*export.Handle, error)
}

// envelope is the uniform response shape every endpoint returns. For send
// endpoints Success mirrors the terminal delivery outcome, so a caller can
// read one field whether the request failed validation or the delivery
// itself exhausted its retry budget; Data still carries the full result.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	logger     *zap.Logger
	notifier   Notifier
	sender     Sender
	deliveries DeliveryStore
	auditTrail AuditService
	approvals  ApprovalCounter
	exporter   Exporter
}

func NewHandler(
	logger *zap.Logger,
	notifier Notifier,
	sender Sender,
	deliveries DeliveryStore,
	auditTrail AuditService,
	approvals ApprovalCounter,
	exporter Exporter,
) *Handler {
	return &Handler{
		logger:     logger,
		notifier:   notifier,
		sender:     sender,
		deliveries: deliveries,
		auditTrail: auditTrail,
		approvals:  approvals,
		exporter:   exporter,
	}
}

// Routes mounts every endpoint on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/notifications/approval", h.NotifyApproval)
		r.Post("/notifications/rejection", h.NotifyRejection)
		r.Post("/notifications/welcome", h.NotifyWelcome)
		r.Post("/notifications/admin-failures", h.NotifyAdminFailures)

		r.Post("/emails", h.SendEmail)
		r.Get("/delivery-logs", h.ListDeliveryLogs)
		r.Get("/delivery-logs/failed-count", h.FailedCount)
		r.Post("/delivery-logs/retry", h.RetryFailed)

		r.Post("/audit/actions", h.LogAdminAction)
		r.Get("/audit/log", h.GetAuditLog)
		r.Get("/audit/timeline/{targetID}", h.GetAuditTimeline)
		r.Get("/audit/summary", h.GetAuditSummary)

		r.Get("/statistics", h.GetStatistics)
		r.Post("/export", h.ExportData)
	})
}

// NotifyApproval handles POST /v1/notifications/approval
func (h *Handler) NotifyApproval(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	outcome, err := h.notifier.NotifyApproval(r.Context(), req)
	if err != nil {
		h.writeNotifyError(w, err)
		return
	}

	h.logger.Info("approval notification handled",
		zap.String("club_name", req.ClubName),
		zap.Bool("sent", outcome.Approval.Success),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: outcome.Approval.Success,
		Data:    outcome,
		Error:   outcome.Approval.Error,
	})
}

// NotifyRejection handles POST /v1/notifications/rejection
func (h *Handler) NotifyRejection(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	result, err := h.notifier.NotifyRejection(r.Context(), req)
	if err != nil {
		h.writeNotifyError(w, err)
		return
	}

	h.writeResult(w, result)
}

// NotifyWelcome handles POST /v1/notifications/welcome
func (h *Handler) NotifyWelcome(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	result, err := h.notifier.NotifyWelcome(r.Context(), req)
	if err != nil {
		h.writeNotifyError(w, err)
		return
	}

	h.writeResult(w, result)
}

// NotifyAdminFailures handles POST /v1/notifications/admin-failures
func (h *Handler) NotifyAdminFailures(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminEmail string             `json:"admin_email"`
		Failures   []template.Failure `json:"failures"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	result, err := h.notifier.NotifyAdminFailures(r.Context(), req.AdminEmail, req.Failures)
	if err != nil {
		h.writeNotifyError(w, err)
		return
	}

	h.writeResult(w, result)
}

// SendEmail handles POST /v1/emails, the raw pre-rendered send path.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To         string `json:"to"`
		Subject    string `json:"subject"`
		HTML       string `json:"html"`
		Text       string `json:"text"`
		MaxRetries *int   `json:"max_retries,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := mailer.ValidateAddress(req.To); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		h.writeError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if req.HTML == "" && req.Text == "" {
		h.writeError(w, http.StatusBadRequest, "at least one of html or text body is required")
		return
	}

	maxRetries := 3
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 || *req.MaxRetries > 10 {
			h.writeError(w, http.StatusBadRequest, "max_retries must be between 0 and 10")
			return
		}
		maxRetries = *req.MaxRetries
	}

	result := h.sender.Send(r.Context(), req.To, &template.Message{
		Subject: req.Subject,
		HTML:    req.HTML,
		Text:    req.Text,
	}, maxRetries)

	h.writeResult(w, result)
}

// ListDeliveryLogs handles GET /v1/delivery-logs?limit=20&offset=0&status=failed
func (h *Handler) ListDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	status := r.URL.Query().Get("status")
	if status != "" && !validDeliveryStatus(status) {
		h.writeError(w, http.StatusBadRequest, "status must be one of: pending, sent, failed, retry")
		return
	}

	logs, err := h.deliveries.List(r.Context(), limit, offset, status)
	if err != nil {
		h.logger.Error("failed to list delivery logs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to list delivery logs")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
		"count":  len(logs),
	})
}

// FailedCount handles GET /v1/delivery-logs/failed-count?since=RFC3339
func (h *Handler) FailedCount(w http.ResponseWriter, r *http.Request) {
	since, ok := h.timeParam(w, r, "since")
	if !ok {
		return
	}

	count, err := h.deliveries.FailedCount(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to count failed deliveries", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to count failed deliveries")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]int{"failed_count": count})
}

// RetryFailed handles POST /v1/delivery-logs/retry. Recent failed rows move
// back to retry status for another delivery pass.
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	maxAge := 24 * time.Hour
	if ageStr := r.URL.Query().Get("max_age"); ageStr != "" {
		d, err := time.ParseDuration(ageStr)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "max_age must be a positive duration such as 30m or 24h")
			return
		}
		maxAge = d
	}

	result, err := h.deliveries.MarkFailedForRetry(r.Context(), maxAge)
	if err != nil {
		h.logger.Error("failed to requeue failed deliveries", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to requeue failed deliveries")
		return
	}

	h.logger.Info("failed deliveries requeued", zap.Int("retried", result.Retried))
	h.writeSuccess(w, http.StatusOK, result)
}

// LogAdminAction handles POST /v1/audit/actions
func (h *Handler) LogAdminAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminID    string  `json:"admin_id"`
		AdminEmail string  `json:"admin_email"`
		ActionType string  `json:"action_type"`
		TargetType string  `json:"target_type"`
		TargetID   *string `json:"target_id,omitempty"`
		TargetName *string `json:"target_name,omitempty"`
		Details    *string `json:"details,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	entry, err := h.auditTrail.LogAction(r.Context(), audit.ActionRequest{
		AdminID:    req.AdminID,
		AdminEmail: req.AdminEmail,
		ActionType: req.ActionType,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		TargetName: req.TargetName,
		Details:    req.Details,
	})
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrRateLimited):
			w.Header().Set("Retry-After", "60")
			h.writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, audit.ErrInvalidAction):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to record admin action", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "failed to record admin action")
		}
		return
	}

	h.writeSuccess(w, http.StatusCreated, entry)
}

// GetAuditLog handles GET /v1/audit/log with optional filters.
func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.auditFilters(w, r)
	if !ok {
		return
	}

	entries, err := h.auditTrail.GetActivityLog(r.Context(), filters)
	if err != nil {
		h.logger.Error("failed to read audit log", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"limit":   filters.Limit,
		"offset":  filters.Offset,
		"count":   len(entries),
	})
}

// GetAuditTimeline handles GET /v1/audit/timeline/{targetID}
func (h *Handler) GetAuditTimeline(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	entries, err := h.auditTrail.GetTimeline(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidAction) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to read audit timeline", zap.Error(err), zap.String("target_id", targetID))
		h.writeError(w, http.StatusInternalServerError, "failed to read audit timeline")
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"target_id": targetID,
		"entries":   entries,
	})
}

// GetAuditSummary handles GET /v1/audit/summary with optional filters.
func (h *Handler) GetAuditSummary(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.auditFilters(w, r)
	if !ok {
		return
	}

	summary, err := h.auditTrail.GetSummary(r.Context(), filters)
	if err != nil {
		h.logger.Error("failed to summarize audit log", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to summarize audit log")
		return
	}

	h.writeSuccess(w, http.StatusOK, summary)
}

// GetStatistics handles GET /v1/statistics?since=RFC3339&until=RFC3339.
// Aggregates are recomputed from the ledgers on every call.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	since, ok := h.timeParam(w, r, "since")
	if !ok {
		return
	}
	until, ok := h.timeParam(w, r, "until")
	if !ok {
		return
	}

	approvals, rejections, err := h.approvals.ApprovalCounts(r.Context(), since, until)
	if err != nil {
		h.logger.Error("failed to compute approval counts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	sent, failed, pending, err := h.deliveries.Statistics(r.Context(), since, until)
	if err != nil {
		h.logger.Error("failed to compute delivery statistics", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	h.writeSuccess(w, http.StatusOK, &db.ApplicationStatistics{
		TotalApprovals:  approvals,
		TotalRejections: rejections,
		EmailsSent:      sent,
		EmailsFailed:    failed,
		EmailsPending:   pending,
	})
}

// ExportData handles POST /v1/export
func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	var opts export.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	handle, err := h.exporter.Export(r.Context(), opts)
	if err != nil {
		if errors.Is(err, export.ErrInvalidFormat) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("export request failed", zap.Error(err), zap.String("format", opts.Format))
		h.writeError(w, http.StatusBadGateway, "export service unavailable")
		return
	}

	h.writeSuccess(w, http.StatusOK, handle)
}

// auditFilters parses the shared audit query parameters. Reports false after
// writing the error response itself.
func (h *Handler) auditFilters(w http.ResponseWriter, r *http.Request) (db.AuditFilters, bool) {
	limit, offset := paginationParams(r)

	filters := db.AuditFilters{
		AdminID:    r.URL.Query().Get("admin_id"),
		ActionType: r.URL.Query().Get("action_type"),
		TargetType: r.URL.Query().Get("target_type"),
		Limit:      limit,
		Offset:     offset,
	}

	since, ok := h.timeParam(w, r, "since")
	if !ok {
		return filters, false
	}
	until, ok := h.timeParam(w, r, "until")
	if !ok {
		return filters, false
	}
	filters.Since = since
	filters.Until = until

	return filters, true
}

func (h *Handler) timeParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, name+" must be an RFC 3339 timestamp")
		return nil, false
	}
	return &t, true
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}

func validDeliveryStatus(status string) bool {
	switch status {
	case db.StatusPending, db.StatusSent, db.StatusFailed, db.StatusRetry:
		return true
	}
	return false
}

// writeNotifyError maps orchestrator errors onto the envelope. Validation
// failures are the caller's fault; anything else is ours.
func (h *Handler) writeNotifyError(w http.ResponseWriter, err error) {
	if errors.Is(err, notify.ErrValidation) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Error("notification failed", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "notification failed")
}

// writeResult reports a terminal delivery result, mirroring its outcome in
// the envelope. The HTTP status stays 200 either way: the request was
// handled, the envelope says whether the delivery went through.
func (h *Handler) writeResult(w http.ResponseWriter, result *retry.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: result.Success,
		Data:    result,
		Error:   result.Error,
	})
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: detail})
}
