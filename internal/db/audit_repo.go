package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditRepository owns the admin_activity_log ledger. The ledger is
// append-only: this type exposes one insert and read-only derivations,
// nothing that mutates an existing row.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a repository over the admin audit ledger
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one audit entry and fills in its id and created_at.
func (r *AuditRepository) Insert(ctx context.Context, entry *AdminActivityLogEntry) error {
	entry.ID = uuid.New()

	query := `
		INSERT INTO admin_activity_log (
			id, admin_id, admin_email, action_type, target_type,
			target_id, target_name, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		entry.ID,
		entry.AdminID,
		entry.AdminEmail,
		entry.ActionType,
		entry.TargetType,
		entry.TargetID,
		entry.TargetName,
		entry.Details,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	r.logger.Info("admin action recorded",
		zap.String("entry_id", entry.ID.String()),
		zap.String("admin_id", entry.AdminID),
		zap.String("action_type", entry.ActionType),
		zap.String("target_type", entry.TargetType),
	)

	return nil
}

// List returns audit entries most-recent-first under the given filters.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters) ([]*AdminActivityLogEntry, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT
			id, admin_id, admin_email, action_type, target_type,
			target_id, target_name, details, created_at
		FROM admin_activity_log
		WHERE ($1 = '' OR admin_id = $1)
		  AND ($2 = '' OR action_type = $2)
		  AND ($3 = '' OR target_type = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7
	`

	rows, err := r.db.Pool().Query(ctx, query,
		filters.AdminID, filters.ActionType, filters.TargetType,
		filters.Since, filters.Until, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// Timeline returns every entry for one target in chronological order,
// oldest first, for reconstructing what happened to that target.
func (r *AuditRepository) Timeline(ctx context.Context, targetID string) ([]*AdminActivityLogEntry, error) {
	query := `
		SELECT
			id, admin_id, admin_email, action_type, target_type,
			target_id, target_name, details, created_at
		FROM admin_activity_log
		WHERE target_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("query target timeline: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// Summary recomputes ledger aggregates under the given filters.
func (r *AuditRepository) Summary(ctx context.Context, filters AuditFilters) (*AuditSummary, error) {
	summary := &AuditSummary{
		ActionsByType:  make(map[string]int),
		ActionsByAdmin: make(map[string]int),
	}

	totalQuery := `
		SELECT COUNT(*), COUNT(DISTINCT admin_id)
		FROM admin_activity_log
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
	`
	if err := r.db.Pool().QueryRow(ctx, totalQuery, filters.Since, filters.Until).
		Scan(&summary.TotalActions, &summary.UniqueAdmins); err != nil {
		return nil, fmt.Errorf("audit totals: %w", err)
	}

	byTypeQuery := `
		SELECT action_type, COUNT(*)
		FROM admin_activity_log
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY action_type
	`
	rows, err := r.db.Pool().Query(ctx, byTypeQuery, filters.Since, filters.Until)
	if err != nil {
		return nil, fmt.Errorf("audit actions by type: %w", err)
	}
	for rows.Next() {
		var actionType string
		var count int
		if err := rows.Scan(&actionType, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan action type count: %w", err)
		}
		summary.ActionsByType[actionType] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	byAdminQuery := `
		SELECT admin_email, COUNT(*)
		FROM admin_activity_log
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY admin_email
	`
	rows, err = r.db.Pool().Query(ctx, byAdminQuery, filters.Since, filters.Until)
	if err != nil {
		return nil, fmt.Errorf("audit actions by admin: %w", err)
	}
	for rows.Next() {
		var adminEmail string
		var count int
		if err := rows.Scan(&adminEmail, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan admin count: %w", err)
		}
		summary.ActionsByAdmin[adminEmail] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	recent, err := r.List(ctx, AuditFilters{
		Since: filters.Since,
		Until: filters.Until,
		Limit: 10,
	})
	if err != nil {
		return nil, err
	}
	summary.RecentActivity = recent

	return summary, nil
}

// ApprovalCounts counts approve/reject actions (bulk included), optionally
// bounded by date range, for the application statistics aggregate.
func (r *AuditRepository) ApprovalCounts(ctx context.Context, since, until *time.Time) (approvals, rejections int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE action_type IN ('approve', 'bulk_approve')),
			COUNT(*) FILTER (WHERE action_type IN ('reject', 'bulk_reject'))
		FROM admin_activity_log
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
	`

	if err = r.db.Pool().QueryRow(ctx, query, since, until).Scan(&approvals, &rejections); err != nil {
		return 0, 0, fmt.Errorf("approval counts: %w", err)
	}

	return approvals, rejections, nil
}

type auditRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAuditEntries(rows auditRows) ([]*AdminActivityLogEntry, error) {
	var entries []*AdminActivityLogEntry
	for rows.Next() {
		var entry AdminActivityLogEntry
		err := rows.Scan(
			&entry.ID,
			&entry.AdminID,
			&entry.AdminEmail,
			&entry.ActionType,
			&entry.TargetType,
			&entry.TargetID,
			&entry.TargetName,
			&entry.Details,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}
