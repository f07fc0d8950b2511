package db

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func eligibleCandidates(n int, createdAt time.Time) []retryCandidate {
	candidates := make([]retryCandidate, n)
	for i := range candidates {
		candidates[i] = retryCandidate{
			ID:         uuid.New(),
			RetryCount: 1,
			CreatedAt:  createdAt,
		}
	}
	return candidates
}

func TestMarkCandidatesForRetryBatchCap(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	// 12 eligible rows but only a batch of 10 may be queued per sweep.
	candidates := eligibleCandidates(12, now.Add(-time.Hour))

	marked := 0
	result := markCandidatesForRetry(candidates, cutoff, func(uuid.UUID) (bool, error) {
		marked++
		return true, nil
	})

	if result.Retried != retryBatchSize {
		t.Errorf("retried = %d, want %d", result.Retried, retryBatchSize)
	}
	if marked != retryBatchSize {
		t.Errorf("rows updated = %d, want %d", marked, retryBatchSize)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}
}

func TestMarkCandidatesForRetryEligibility(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	exhausted := retryCandidate{ID: uuid.New(), RetryCount: maxRequeueCount, CreatedAt: now.Add(-time.Hour)}
	tooOld := retryCandidate{ID: uuid.New(), RetryCount: 0, CreatedAt: now.Add(-48 * time.Hour)}
	eligible := retryCandidate{ID: uuid.New(), RetryCount: 2, CreatedAt: now.Add(-time.Hour)}

	var markedIDs []uuid.UUID
	result := markCandidatesForRetry([]retryCandidate{exhausted, tooOld, eligible}, cutoff, func(id uuid.UUID) (bool, error) {
		markedIDs = append(markedIDs, id)
		return true, nil
	})

	if result.Retried != 1 {
		t.Errorf("retried = %d, want 1", result.Retried)
	}
	if len(markedIDs) != 1 || markedIDs[0] != eligible.ID {
		t.Errorf("ineligible rows must never reach the update, marked %v", markedIDs)
	}
	if len(result.Errors) != 0 {
		t.Errorf("skipped ineligible rows are not errors, got %v", result.Errors)
	}
}

func TestMarkCandidatesForRetryCollectsPerRowErrors(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	candidates := eligibleCandidates(4, now.Add(-time.Hour))
	failing := candidates[1].ID
	raced := candidates[2].ID

	result := markCandidatesForRetry(candidates, cutoff, func(id uuid.UUID) (bool, error) {
		switch id {
		case failing:
			return false, errors.New("connection refused")
		case raced:
			// Another sweep already flipped this row.
			return false, nil
		}
		return true, nil
	})

	if result.Retried != 2 {
		t.Errorf("retried = %d, want 2", result.Retried)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors = %v, want one per row that could not be queued", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "connection refused") {
		t.Errorf("update failure not reported: %q", result.Errors[0])
	}
	if !strings.Contains(result.Errors[1], "already queued") {
		t.Errorf("concurrent flip not reported: %q", result.Errors[1])
	}
}

func TestMarkCandidatesForRetryEmptySweep(t *testing.T) {
	result := markCandidatesForRetry(nil, time.Now(), func(uuid.UUID) (bool, error) {
		t.Fatal("mark must not be called with no candidates")
		return false, nil
	})

	if result.Retried != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want empty sweep", result)
	}
}
