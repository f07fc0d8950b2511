package db

import (
	"time"

	"github.com/google/uuid"
)

// Delivery status constants. Transitions are monotonic:
// pending -> sent, or pending -> retry -> ... -> sent|failed.
// Terminal rows (sent, failed) never change status again.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusRetry   = "retry"
)

// DeliveryLog is one row of the append-only email delivery ledger.
// Rows are created when a send begins and updated in place as the
// send progresses through retries; they are never deleted.
type DeliveryLog struct {
	ID           uuid.UUID  `json:"id"`
	ToEmail      string     `json:"to_email"`
	Subject      string     `json:"subject"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	MessageID    *string    `json:"message_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// Admin action types
const (
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionBulkApprove = "bulk_approve"
	ActionBulkReject  = "bulk_reject"
	ActionView        = "view"
	ActionExport      = "export"
)

// Audit target types
const (
	TargetClubApplication = "club_application"
	TargetReport          = "report"
	TargetAuditLog        = "audit_log"
)

// AdminActivityLogEntry is one row of the append-only admin audit ledger.
// Entries are written exactly once and immutable thereafter; the repository
// deliberately has no update or delete statement for this table.
type AdminActivityLogEntry struct {
	ID         uuid.UUID `json:"id"`
	AdminID    string    `json:"admin_id"`
	AdminEmail string    `json:"admin_email"`
	ActionType string    `json:"action_type"`
	TargetType string    `json:"target_type"`
	TargetID   *string   `json:"target_id,omitempty"`
	TargetName *string   `json:"target_name,omitempty"`
	Details    *string   `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RetryBatchResult reports the outcome of marking failed deliveries for retry.
type RetryBatchResult struct {
	Retried int      `json:"retried"`
	Errors  []string `json:"errors"`
}

// AuditFilters bounds audit ledger reads.
type AuditFilters struct {
	AdminID    string
	ActionType string
	TargetType string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// AuditSummary is a read-only aggregate over the audit ledger.
type AuditSummary struct {
	TotalActions   int                      `json:"total_actions"`
	UniqueAdmins   int                      `json:"unique_admins"`
	ActionsByType  map[string]int           `json:"actions_by_type"`
	ActionsByAdmin map[string]int           `json:"actions_by_admin"`
	RecentActivity []*AdminActivityLogEntry `json:"recent_activity"`
}

// ApplicationStatistics is a read-only aggregate over delivery and audit rows,
// recomputed on query with optional date-range bounds.
type ApplicationStatistics struct {
	TotalApprovals  int `json:"total_approvals"`
	TotalRejections int `json:"total_rejections"`
	EmailsSent      int `json:"emails_sent"`
	EmailsFailed    int `json:"emails_failed"`
	EmailsPending   int `json:"emails_pending"`
}
