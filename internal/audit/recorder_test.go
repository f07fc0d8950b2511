package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/db"
	"github.com/clubmatch/clubmatch/internal/ratelimit"
)

type mockStore struct {
	inserted  []*db.AdminActivityLogEntry
	insertErr error

	listResult    []*db.AdminActivityLogEntry
	timelineCalls []string
	summaryResult *db.AuditSummary
}

func (m *mockStore) Insert(_ context.Context, entry *db.AdminActivityLogEntry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, entry)
	return nil
}

func (m *mockStore) List(_ context.Context, _ db.AuditFilters) ([]*db.AdminActivityLogEntry, error) {
	return m.listResult, nil
}

func (m *mockStore) Timeline(_ context.Context, targetID string) ([]*db.AdminActivityLogEntry, error) {
	m.timelineCalls = append(m.timelineCalls, targetID)
	return nil, nil
}

func (m *mockStore) Summary(_ context.Context, _ db.AuditFilters) (*db.AuditSummary, error) {
	return m.summaryResult, nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("limiter backend down")
}

func newTestRecorder(t *testing.T) (*Recorder, *mockStore, *ratelimit.MemoryLimiter, *time.Time) {
	t.Helper()

	store := &mockStore{}
	limiter := ratelimit.NewMemoryLimiter()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.SetClock(func() time.Time { return now })

	return NewRecorder(store, limiter, zap.NewNop()), store, limiter, &now
}

func validRequest(actionType string) ActionRequest {
	targetID := "app-42"
	return ActionRequest{
		AdminID:    "admin-1",
		AdminEmail: "admin@clubmatch.test",
		ActionType: actionType,
		TargetType: db.TargetClubApplication,
		TargetID:   &targetID,
	}
}

func TestLogActionRecordsEntry(t *testing.T) {
	recorder, store, _, _ := newTestRecorder(t)

	details := "approved after document review"
	req := validRequest(db.ActionApprove)
	req.Details = &details

	entry, err := recorder.LogAction(context.Background(), req)
	if err != nil {
		t.Fatalf("LogAction: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 inserted entry, got %d", len(store.inserted))
	}
	if entry.AdminID != "admin-1" || entry.ActionType != db.ActionApprove {
		t.Errorf("entry fields not carried through: %+v", entry)
	}
	if entry.Details == nil || *entry.Details != details {
		t.Errorf("details not carried through")
	}
}

func TestLogActionValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ActionRequest)
	}{
		{"missing admin id", func(r *ActionRequest) { r.AdminID = "  " }},
		{"missing admin email", func(r *ActionRequest) { r.AdminEmail = "" }},
		{"unknown action type", func(r *ActionRequest) { r.ActionType = "delete_everything" }},
		{"unknown target type", func(r *ActionRequest) { r.TargetType = "user" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, store, _, _ := newTestRecorder(t)

			req := validRequest(db.ActionView)
			tt.mutate(&req)

			_, err := recorder.LogAction(context.Background(), req)
			if !errors.Is(err, ErrInvalidAction) {
				t.Fatalf("expected ErrInvalidAction, got %v", err)
			}
			if errors.Is(err, ErrRateLimited) {
				t.Error("validation failure must not read as rate limiting")
			}
			if len(store.inserted) != 0 {
				t.Errorf("invalid action must not reach the ledger, got %d inserts", len(store.inserted))
			}
		})
	}
}

func TestLogActionBulkBudget(t *testing.T) {
	recorder, store, _, now := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := recorder.LogAction(ctx, validRequest(db.ActionBulkApprove)); err != nil {
			t.Fatalf("bulk_approve %d: %v", i+1, err)
		}
	}

	_, err := recorder.LogAction(ctx, validRequest(db.ActionBulkApprove))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("6th bulk_approve in a minute should be rate limited, got %v", err)
	}
	if len(store.inserted) != 5 {
		t.Errorf("rate limited action must not be recorded, got %d inserts", len(store.inserted))
	}

	// The window slides: a minute later the admin is allowed again.
	*now = now.Add(time.Minute + time.Second)
	if _, err := recorder.LogAction(ctx, validRequest(db.ActionBulkApprove)); err != nil {
		t.Fatalf("bulk_approve after window: %v", err)
	}
}

func TestLogActionBudgetsAreIndependent(t *testing.T) {
	recorder, _, _, _ := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := recorder.LogAction(ctx, validRequest(db.ActionBulkReject)); err != nil {
			t.Fatalf("bulk_reject %d: %v", i+1, err)
		}
	}
	if _, err := recorder.LogAction(ctx, validRequest(db.ActionBulkReject)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("bulk_reject over budget: got %v", err)
	}

	// Other action types for the same admin are unaffected.
	if _, err := recorder.LogAction(ctx, validRequest(db.ActionApprove)); err != nil {
		t.Errorf("approve should have its own budget: %v", err)
	}

	// The same action type by another admin is unaffected.
	other := validRequest(db.ActionBulkReject)
	other.AdminID = "admin-2"
	if _, err := recorder.LogAction(ctx, other); err != nil {
		t.Errorf("other admin should have their own budget: %v", err)
	}
}

func TestLogActionFailsOpenWhenLimiterErrors(t *testing.T) {
	store := &mockStore{}
	recorder := NewRecorder(store, failingLimiter{}, zap.NewNop())

	if _, err := recorder.LogAction(context.Background(), validRequest(db.ActionApprove)); err != nil {
		t.Fatalf("limiter outage must not block auditing: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Errorf("expected entry recorded despite limiter outage")
	}
}

func TestLogActionStoreError(t *testing.T) {
	store := &mockStore{insertErr: errors.New("connection refused")}
	recorder := NewRecorder(store, ratelimit.NewMemoryLimiter(), zap.NewNop())

	_, err := recorder.LogAction(context.Background(), validRequest(db.ActionView))
	if err == nil {
		t.Fatal("expected ledger write failure to surface")
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidAction) {
		t.Errorf("storage failure must not read as rate limiting or validation: %v", err)
	}
}

func TestGetTimelineRequiresTarget(t *testing.T) {
	recorder, store, _, _ := newTestRecorder(t)

	if _, err := recorder.GetTimeline(context.Background(), " "); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for blank target, got %v", err)
	}

	if _, err := recorder.GetTimeline(context.Background(), "app-7"); err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(store.timelineCalls) != 1 || store.timelineCalls[0] != "app-7" {
		t.Errorf("timeline call not delegated, got %v", store.timelineCalls)
	}
}
