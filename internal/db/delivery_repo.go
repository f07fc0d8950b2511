package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// retryBatchSize caps how many failed rows one retry sweep may queue.
const retryBatchSize = 10

// maxRequeueCount excludes rows that already burned their retry budget.
const maxRequeueCount = 3

// retryScanBound caps how many failed rows one sweep examines before the
// eligibility guard runs.
const retryScanBound = 100

// DeliveryLogRepository owns the email_delivery_logs ledger.
type DeliveryLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDeliveryLogRepository creates a repository over the delivery ledger
func NewDeliveryLogRepository(db *DB, logger *zap.Logger) *DeliveryLogRepository {
	return &DeliveryLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new delivery ledger row and returns its id.
func (r *DeliveryLogRepository) Create(ctx context.Context, toEmail, subject, status string, retryCount int) (uuid.UUID, error) {
	id := uuid.New()

	query := `
		INSERT INTO email_delivery_logs (
			id, to_email, subject, status, retry_count
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query, id, toEmail, subject, status, retryCount)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert delivery log: %w", err)
	}

	return id, nil
}

// UpdateStatus advances a delivery row's status. A nil errorMsg clears the
// error column; sent rows also record sent_at and the provider message id.
func (r *DeliveryLogRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, retryCount int, errorMsg, messageID *string) error {
	var query string
	var err error

	if status == StatusSent {
		query = `
			UPDATE email_delivery_logs
			SET status = $1, retry_count = $2, error_message = $3, message_id = $4, sent_at = NOW()
			WHERE id = $5
		`
		_, err = r.db.Pool().Exec(ctx, query, status, retryCount, errorMsg, messageID, id)
	} else {
		query = `
			UPDATE email_delivery_logs
			SET status = $1, retry_count = $2, error_message = $3, message_id = $4
			WHERE id = $5
		`
		_, err = r.db.Pool().Exec(ctx, query, status, retryCount, errorMsg, messageID, id)
	}

	if err != nil {
		return fmt.Errorf("update delivery log: %w", err)
	}

	return nil
}

// List returns delivery rows most-recent-first, optionally filtered by status.
func (r *DeliveryLogRepository) List(ctx context.Context, limit, offset int, statusFilter string) ([]*DeliveryLog, error) {
	query := `
		SELECT
			id, to_email, subject, status, retry_count,
			error_message, message_id, created_at, sent_at
		FROM email_delivery_logs
		WHERE ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset, statusFilter)
	if err != nil {
		return nil, fmt.Errorf("query delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []*DeliveryLog
	for rows.Next() {
		var log DeliveryLog
		err := rows.Scan(
			&log.ID,
			&log.ToEmail,
			&log.Subject,
			&log.Status,
			&log.RetryCount,
			&log.ErrorMessage,
			&log.MessageID,
			&log.CreatedAt,
			&log.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return logs, nil
}

// FailedCount counts terminal-failure rows, optionally bounded by a lower timestamp.
func (r *DeliveryLogRepository) FailedCount(ctx context.Context, since *time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM email_delivery_logs
		WHERE status = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, StatusFailed, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed deliveries: %w", err)
	}

	return count, nil
}

// MarkFailedForRetry selects up to retryBatchSize failed rows younger than
// maxAge that still have retry budget left and flips them to retry status.
// It only queues candidates; re-rendering and re-sending is the caller's job.
func (r *DeliveryLogRepository) MarkFailedForRetry(ctx context.Context, maxAge time.Duration) (*RetryBatchResult, error) {
	cutoff := time.Now().Add(-maxAge)

	query := `
		SELECT id, retry_count, created_at
		FROM email_delivery_logs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, StatusFailed, retryScanBound)
	if err != nil {
		return nil, fmt.Errorf("query retry candidates: %w", err)
	}

	var candidates []retryCandidate
	for rows.Next() {
		var c retryCandidate
		if err := rows.Scan(&c.ID, &c.RetryCount, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan retry candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	result := markCandidatesForRetry(candidates, cutoff, func(id uuid.UUID) (bool, error) {
		// Guard on status so a concurrent sweep cannot double-queue a row.
		tag, err := r.db.Pool().Exec(ctx,
			`UPDATE email_delivery_logs SET status = $1 WHERE id = $2 AND status = $3`,
			StatusRetry, id, StatusFailed,
		)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	})

	r.logger.Info("failed deliveries queued for retry",
		zap.Int("retried", result.Retried),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("max_age", maxAge),
	)

	return result, nil
}

// retryCandidate is one failed row under consideration by a retry sweep.
type retryCandidate struct {
	ID         uuid.UUID
	RetryCount int
	CreatedAt  time.Time
}

// markCandidatesForRetry applies the eligibility guard and the batch cap,
// then flips each selected row back to retry through mark. mark reports
// whether the row was actually updated; rows that could not be flipped are
// collected per-row rather than failing the whole sweep.
func markCandidatesForRetry(candidates []retryCandidate, cutoff time.Time, mark func(id uuid.UUID) (bool, error)) *RetryBatchResult {
	result := &RetryBatchResult{Errors: []string{}}

	attempted := 0
	for _, c := range candidates {
		if attempted == retryBatchSize {
			break
		}
		if c.RetryCount >= maxRequeueCount || c.CreatedAt.Before(cutoff) {
			continue
		}
		attempted++

		updated, err := mark(c.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", c.ID, err))
			continue
		}
		if !updated {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: already queued", c.ID))
			continue
		}
		result.Retried++
	}

	return result
}

// Statistics recomputes delivery aggregates, optionally bounded by date range.
func (r *DeliveryLogRepository) Statistics(ctx context.Context, since, until *time.Time) (sent, failed, pending int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status IN ('pending', 'retry'))
		FROM email_delivery_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
	`

	if err = r.db.Pool().QueryRow(ctx, query, since, until).Scan(&sent, &failed, &pending); err != nil {
		return 0, 0, 0, fmt.Errorf("delivery statistics: %w", err)
	}

	return sent, failed, pending, nil
}
