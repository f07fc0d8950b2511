// Package notify composes template rendering and retried delivery into the
// lifecycle notifications the platform sends to club contacts and admins.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/mailer"
	"github.com/clubmatch/clubmatch/internal/metrics"
	"github.com/clubmatch/clubmatch/internal/retry"
	"github.com/clubmatch/clubmatch/internal/template"
)

// ErrValidation signals a bad notification request. Returned before any
// transport work happens.
var ErrValidation = errors.New("invalid notification request")

// Sender is the retried delivery path. Satisfied by retry.Engine.
type Sender interface {
	Send(ctx context.Context, to string, msg *template.Message, maxRetries int) *retry.Result
}

// Config carries the per-kind retry budgets and timing knobs.
type Config struct {
	ApprovalRetries int           // approval and rejection emails
	WelcomeRetries  int           // welcome and admin digest emails
	WelcomeDelay    time.Duration // pause before dispatching the welcome email
	SendTimeout     time.Duration // per-attempt transport timeout
	BackoffBase     time.Duration // first retry delay, doubling thereafter
}

// Orchestrator drives one notification from request to terminal delivery
// result.
type Orchestrator struct {
	renderer *template.Renderer
	sender   Sender
	logger   *zap.Logger
	cfg      Config

	sleep func(ctx context.Context, d time.Duration) error // injectable for tests
}

func New(renderer *template.Renderer, sender Sender, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	return &Orchestrator{
		renderer: renderer,
		sender:   sender,
		logger:   logger,
		cfg:      cfg,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Request identifies the club contact a lifecycle notification goes to.
type Request struct {
	ClubName    string `json:"club_name"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Reason      string `json:"reason,omitempty"` // rejection only
}

// ApprovalOutcome pairs the approval delivery result with the follow-up
// welcome result. Welcome is nil when the approval email never went out.
type ApprovalOutcome struct {
	Approval *retry.Result `json:"approval"`
	Welcome  *retry.Result `json:"welcome,omitempty"`
}

// NotifyApproval sends the approval email and, once it is confirmed sent,
// follows up with the welcome email. The welcome leg is best effort: its
// failure is reported in the outcome but never fails the approval.
func (o *Orchestrator) NotifyApproval(ctx context.Context, req Request) (*ApprovalOutcome, error) {
	msg, err := o.prepare(template.KindApproval, req)
	if err != nil {
		return nil, err
	}

	result := o.dispatch(ctx, string(template.KindApproval), req.Email, msg, o.cfg.ApprovalRetries)
	outcome := &ApprovalOutcome{Approval: result}
	if !result.Success {
		return outcome, nil
	}

	welcome, err := o.NotifyWelcome(ctx, req)
	if err != nil {
		o.logger.Warn("welcome follow-up failed",
			zap.String("club_name", req.ClubName),
			zap.Error(err),
		)
		return outcome, nil
	}
	outcome.Welcome = welcome

	return outcome, nil
}

// NotifyRejection sends the rejection email. A rejection without a reason is
// refused outright; the contact must always learn why.
func (o *Orchestrator) NotifyRejection(ctx context.Context, req Request) (*retry.Result, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	msg, err := o.prepare(template.KindRejection, req)
	if err != nil {
		return nil, err
	}

	return o.dispatch(ctx, string(template.KindRejection), req.Email, msg, o.cfg.ApprovalRetries), nil
}

// NotifyWelcome sends the onboarding email after a short pause, giving the
// approval email time to land first in the contact's inbox.
func (o *Orchestrator) NotifyWelcome(ctx context.Context, req Request) (*retry.Result, error) {
	msg, err := o.prepare(template.KindWelcome, req)
	if err != nil {
		return nil, err
	}

	if o.cfg.WelcomeDelay > 0 {
		if err := o.sleep(ctx, o.cfg.WelcomeDelay); err != nil {
			return nil, fmt.Errorf("welcome dispatch canceled: %w", err)
		}
	}

	return o.dispatch(ctx, string(template.KindWelcome), req.Email, msg, o.cfg.WelcomeRetries), nil
}

// NotifyAdminFailures sends the delivery-failure digest to an admin.
func (o *Orchestrator) NotifyAdminFailures(ctx context.Context, adminEmail string, failures []template.Failure) (*retry.Result, error) {
	if len(failures) == 0 {
		return nil, fmt.Errorf("%w: at least one failure is required", ErrValidation)
	}
	if err := mailer.ValidateAddress(adminEmail); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	msg, err := o.render(template.KindAdminFailureSummary, template.Data{Failures: failures})
	if err != nil {
		return nil, err
	}

	return o.dispatch(ctx, string(template.KindAdminFailureSummary), adminEmail, msg, o.cfg.WelcomeRetries), nil
}

// prepare validates the request and renders the message for it.
func (o *Orchestrator) prepare(kind template.Kind, req Request) (*template.Message, error) {
	if strings.TrimSpace(req.ClubName) == "" {
		return nil, fmt.Errorf("%w: club_name is required", ErrValidation)
	}
	if err := mailer.ValidateAddress(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	return o.render(kind, template.Data{
		ClubName:    req.ClubName,
		ContactName: req.ContactName,
		Reason:      req.Reason,
	})
}

// render produces the message and refuses to hand out one that fails the
// safety check. The renderer already sanitizes inputs; this catches anything
// that still slipped into the rendered output.
func (o *Orchestrator) render(kind template.Kind, data template.Data) (*template.Message, error) {
	msg, err := o.renderer.Render(kind, data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}

	if v := template.Validate(msg); !v.Valid {
		o.logger.Error("rendered message failed safety validation",
			zap.String("kind", string(kind)),
			zap.Strings("issues", v.Issues),
		)
		return nil, fmt.Errorf("%w: rendered message failed validation: %s", ErrValidation, strings.Join(v.Issues, "; "))
	}

	return msg, nil
}

// dispatch runs the retried send under a deadline sized to the full retry
// schedule, so a wedged transport cannot hold the caller indefinitely.
func (o *Orchestrator) dispatch(ctx context.Context, kind, to string, msg *template.Message, maxRetries int) *retry.Result {
	ctx, cancel := context.WithTimeout(ctx, o.sendBudget(maxRetries))
	defer cancel()

	result := o.sender.Send(ctx, to, msg, maxRetries)

	outcome := "sent"
	if !result.Success {
		outcome = "failed"
	}
	metrics.RecordNotification(kind, outcome)
	o.logger.Info("notification dispatched",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.Bool("success", result.Success),
		zap.Int("retry_count", result.RetryCount),
	)

	return result
}

// sendBudget is the worst-case wall time of a full retry schedule: every
// attempt running to its timeout plus every backoff pause in between.
func (o *Orchestrator) sendBudget(maxRetries int) time.Duration {
	if maxRetries < 0 {
		maxRetries = 0
	}

	budget := time.Duration(maxRetries+1) * o.cfg.SendTimeout
	for i := 0; i < maxRetries; i++ {
		budget += o.cfg.BackoffBase << i
	}

	return budget
}
