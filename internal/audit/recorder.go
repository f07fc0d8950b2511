// Package audit records administrative actions in an append-only ledger.
// Entries are written exactly once; this package deliberately exposes no
// way to update or delete one.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/db"
	"github.com/clubmatch/clubmatch/internal/metrics"
	"github.com/clubmatch/clubmatch/internal/ratelimit"
)

// ErrRateLimited signals the per-admin action budget is exhausted. Distinct
// from validation errors so callers can tell "try again later" from "this
// input is wrong".
var ErrRateLimited = errors.New("admin action rate limit exceeded")

// ErrInvalidAction signals a malformed audit request.
var ErrInvalidAction = errors.New("invalid audit action")

// rateLimitWindow is the budget window for every action type.
const rateLimitWindow = time.Minute

// actionBudgets caps how often one admin may record each action type per
// window. Bulk operations are the tightest since each one fans out to many
// targets.
var actionBudgets = map[string]int{
	db.ActionApprove:     50,
	db.ActionReject:      30,
	db.ActionBulkApprove: 5,
	db.ActionBulkReject:  5,
	db.ActionView:        200,
	db.ActionExport:      30,
}

var validTargetTypes = map[string]bool{
	db.TargetClubApplication: true,
	db.TargetReport:          true,
	db.TargetAuditLog:        true,
}

// Store is the ledger the recorder writes to and derives reads from.
type Store interface {
	Insert(ctx context.Context, entry *db.AdminActivityLogEntry) error
	List(ctx context.Context, filters db.AuditFilters) ([]*db.AdminActivityLogEntry, error)
	Timeline(ctx context.Context, targetID string) ([]*db.AdminActivityLogEntry, error)
	Summary(ctx context.Context, filters db.AuditFilters) (*db.AuditSummary, error)
}

// Recorder is the audit trail front door. The rate limiter is injected so
// single-instance deployments can use the in-process limiter and
// multi-instance ones the Redis-backed limiter, without the recorder caring.
type Recorder struct {
	store   Store
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

func NewRecorder(store Store, limiter ratelimit.Limiter, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		limiter: limiter,
		logger:  logger,
	}
}

// ActionRequest carries one administrative action to record.
type ActionRequest struct {
	AdminID    string
	AdminEmail string
	ActionType string
	TargetType string
	TargetID   *string
	TargetName *string
	Details    *string
}

// LogAction validates, rate-limits, and appends one audit entry.
func (r *Recorder) LogAction(ctx context.Context, req ActionRequest) (*db.AdminActivityLogEntry, error) {
	if strings.TrimSpace(req.AdminID) == "" {
		return nil, fmt.Errorf("%w: admin_id is required", ErrInvalidAction)
	}
	if strings.TrimSpace(req.AdminEmail) == "" {
		return nil, fmt.Errorf("%w: admin_email is required", ErrInvalidAction)
	}

	budget, ok := actionBudgets[req.ActionType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action_type %q", ErrInvalidAction, req.ActionType)
	}
	if !validTargetTypes[req.TargetType] {
		return nil, fmt.Errorf("%w: unknown target_type %q", ErrInvalidAction, req.TargetType)
	}

	key := fmt.Sprintf("audit:%s:%s", req.AdminID, req.ActionType)
	allowed, err := r.limiter.Allow(ctx, key, budget, rateLimitWindow)
	if err != nil {
		// A broken limiter must not block auditing; fail open and record.
		r.logger.Warn("audit rate limit check failed, allowing action",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if !allowed {
		metrics.RecordRateLimitRejection("audit")
		r.logger.Warn("admin action rate limited",
			zap.String("admin_id", req.AdminID),
			zap.String("action_type", req.ActionType),
			zap.Int("budget", budget),
		)
		return nil, fmt.Errorf("%w: %s allows %d per minute", ErrRateLimited, req.ActionType, budget)
	}

	entry := &db.AdminActivityLogEntry{
		AdminID:    req.AdminID,
		AdminEmail: req.AdminEmail,
		ActionType: req.ActionType,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		TargetName: req.TargetName,
		Details:    req.Details,
	}

	if err := r.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("record admin action: %w", err)
	}
	metrics.RecordAuditAction(req.ActionType)

	return entry, nil
}

// GetActivityLog returns filtered, paginated ledger entries, newest first.
func (r *Recorder) GetActivityLog(ctx context.Context, filters db.AuditFilters) ([]*db.AdminActivityLogEntry, error) {
	return r.store.List(ctx, filters)
}

// GetTimeline returns every entry touching one target, oldest first.
func (r *Recorder) GetTimeline(ctx context.Context, targetID string) ([]*db.AdminActivityLogEntry, error) {
	if strings.TrimSpace(targetID) == "" {
		return nil, fmt.Errorf("%w: target_id is required", ErrInvalidAction)
	}
	return r.store.Timeline(ctx, targetID)
}

// GetSummary returns ledger aggregates for the given filters.
func (r *Recorder) GetSummary(ctx context.Context, filters db.AuditFilters) (*db.AuditSummary, error) {
	return r.store.Summary(ctx, filters)
}
