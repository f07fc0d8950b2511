// Package retry drives repeated delivery attempts with exponential backoff.
// The per-send state machine is an explicit loop over a first-class status
// value (pending -> sent, or pending -> retry -> ... -> sent|failed), never
// recursion, so the attempt count is bounded and inspectable.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/db"
	"github.com/clubmatch/clubmatch/internal/mailer"
	"github.com/clubmatch/clubmatch/internal/metrics"
	"github.com/clubmatch/clubmatch/internal/template"
)

// LogStore is the slice of the delivery ledger the engine writes through.
// Ledger writes are fail-soft: the engine discards store errors after
// logging them, so an unavailable ledger never blocks a send.
type LogStore interface {
	Create(ctx context.Context, toEmail, subject, status string, retryCount int) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, retryCount int, errorMsg, messageID *string) error
}

// Result is the terminal outcome of one Send call.
type Result struct {
	Success    bool   `json:"success"`
	MessageID  string `json:"message_id,omitempty"`
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	Status     string `json:"delivery_status"`
}

// Engine sequences delivery attempts through a single-attempt transport.
type Engine struct {
	client mailer.Client
	logs   LogStore
	logger *zap.Logger

	backoffBase time.Duration
	sleep       func(ctx context.Context, d time.Duration) error // injectable for tests
}

type Config struct {
	// BackoffBase is the delay before the first retry; each further retry
	// doubles it (base, 2x, 4x, ...).
	BackoffBase time.Duration
}

func New(client mailer.Client, logs LogStore, cfg Config, logger *zap.Logger) *Engine {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1 * time.Second
	}

	return &Engine{
		client:      client,
		logs:        logs,
		logger:      logger,
		backoffBase: cfg.BackoffBase,
		sleep:       sleepContext,
	}
}

// Send runs one message through up to maxRetries+1 attempts. maxRetries = 0
// means exactly one attempt. It always returns a terminal Result whose
// RetryCount is the number of retries actually performed; transport errors
// only surface in the Result once the budget is exhausted.
func (e *Engine) Send(ctx context.Context, to string, msg *template.Message, maxRetries int) *Result {
	if maxRetries < 0 {
		maxRetries = 0
	}

	logID := e.createLog(ctx, to, msg.Subject)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoffBase << (attempt - 1)
			if err := e.sleep(ctx, delay); err != nil {
				// Caller timeout fired during backoff: the send is over. The
				// ledger keeps the retry marker already written for this
				// attempt; the result reports only retries actually performed.
				errMsg := fmt.Sprintf("canceled during backoff: %v", err)
				e.updateLog(ctx, logID, db.StatusFailed, attempt, &errMsg, nil)
				metrics.RecordDelivery(db.StatusFailed)

				e.logger.Error("email delivery failed permanently",
					zap.String("to", to),
					zap.Int("retry_count", attempt-1),
					zap.String("error", errMsg),
				)

				return &Result{
					Success:    false,
					Error:      errMsg,
					RetryCount: attempt - 1,
					Status:     db.StatusFailed,
				}
			}
		}

		result, err := e.attempt(ctx, to, msg)
		if err == nil {
			return e.finishSent(ctx, logID, to, attempt, result.MessageID)
		}
		lastErr = err

		e.logger.Warn("delivery attempt failed",
			zap.String("to", to),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		// Validation failures are not transport flakiness; retrying cannot help.
		if errors.Is(err, mailer.ErrInvalidRecipient) {
			return e.finishFailed(ctx, logID, to, attempt, err)
		}

		if attempt < maxRetries {
			errMsg := err.Error()
			e.updateLog(ctx, logID, db.StatusRetry, attempt+1, &errMsg, nil)
			metrics.RecordDeliveryRetry()
		}
	}

	return e.finishFailed(ctx, logID, to, maxRetries, lastErr)
}

// attempt performs one transport call, converting a panicking client into
// an ordinary failed attempt that stays subject to the retry budget.
func (e *Engine) attempt(ctx context.Context, to string, msg *template.Message) (result *mailer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	return e.client.Send(ctx, to, msg)
}

func (e *Engine) finishSent(ctx context.Context, logID uuid.UUID, to string, retries int, messageID string) *Result {
	var msgID *string
	if messageID != "" {
		msgID = &messageID
	}
	e.updateLog(ctx, logID, db.StatusSent, retries, nil, msgID)
	metrics.RecordDelivery(db.StatusSent)

	e.logger.Info("email delivered",
		zap.String("to", to),
		zap.Int("retry_count", retries),
		zap.String("message_id", messageID),
	)

	return &Result{
		Success:    true,
		MessageID:  messageID,
		RetryCount: retries,
		Status:     db.StatusSent,
	}
}

func (e *Engine) finishFailed(ctx context.Context, logID uuid.UUID, to string, retries int, lastErr error) *Result {
	errMsg := "delivery failed"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	e.updateLog(ctx, logID, db.StatusFailed, retries, &errMsg, nil)
	metrics.RecordDelivery(db.StatusFailed)

	e.logger.Error("email delivery failed permanently",
		zap.String("to", to),
		zap.Int("retry_count", retries),
		zap.String("error", errMsg),
	)

	return &Result{
		Success:    false,
		Error:      errMsg,
		RetryCount: retries,
		Status:     db.StatusFailed,
	}
}

// createLog opens the ledger row for this send. A store failure is logged
// and discarded: the notification is still attempted without audit cover.
func (e *Engine) createLog(ctx context.Context, to, subject string) uuid.UUID {
	if e.logs == nil {
		return uuid.Nil
	}

	logID, err := e.logs.Create(ctx, to, subject, db.StatusPending, 0)
	if err != nil {
		e.logger.Debug("delivery log write failed, continuing without ledger row",
			zap.String("to", to),
			zap.Error(err),
		)
		return uuid.Nil
	}

	return logID
}

// updateLog advances the ledger row. Store errors are deliberately
// discarded after a debug log; auditing must not fail the send path.
func (e *Engine) updateLog(ctx context.Context, logID uuid.UUID, status string, retryCount int, errorMsg, messageID *string) {
	if e.logs == nil || logID == uuid.Nil {
		return
	}

	if err := e.logs.UpdateStatus(ctx, logID, status, retryCount, errorMsg, messageID); err != nil {
		e.logger.Debug("delivery log update failed, continuing",
			zap.String("log_id", logID.String()),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
