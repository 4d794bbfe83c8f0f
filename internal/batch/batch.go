// Package batch drives the calculation pipeline over one exposure batch and
// owns the batch state machine:
//
//	PENDING → PROCESSING → {COMPLETED | FAILED}
//
// COMPLETED and FAILED are terminal. A finished batch is never re-run; a
// retry must create a new batch id.
package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

var (
	// ErrInvalidTransition is returned for a state change the machine does
	// not admit, including any mutation of a terminal batch.
	ErrInvalidTransition = errors.New("batch: invalid status transition")

	// ErrNegativeExposures is returned when a batch is created with a
	// negative exposure count.
	ErrNegativeExposures = errors.New("batch: total exposures cannot be negative")
)

// New creates a batch in PENDING.
func New(batchID, bankID string, totalExposures int) (*model.Batch, error) {
	if totalExposures < 0 {
		return nil, ErrNegativeExposures
	}
	return &model.Batch{
		ID:             batchID,
		BankID:         bankID,
		Status:         model.BatchPending,
		TotalExposures: totalExposures,
	}, nil
}

// Start transitions PENDING → PROCESSING and stamps the start time.
func Start(b *model.Batch, now time.Time) error {
	if b.Status != model.BatchPending {
		return fmt.Errorf("%w: %s → PROCESSING", ErrInvalidTransition, b.Status)
	}
	b.Status = model.BatchProcessing
	b.StartedAt = now
	return nil
}

// Complete transitions PROCESSING → COMPLETED with the results reference.
// A completed batch may still carry per-exposure failures.
func Complete(b *model.Batch, resultsURI string, failedCount int, now time.Time) error {
	if b.Status != model.BatchProcessing {
		return fmt.Errorf("%w: %s → COMPLETED", ErrInvalidTransition, b.Status)
	}
	b.Status = model.BatchCompleted
	b.ResultsURI = resultsURI
	b.FailedCount = failedCount
	b.CompletedAt = &now
	b.DurationMillis = now.Sub(b.StartedAt).Milliseconds()
	return nil
}

// Fail transitions PROCESSING → FAILED with a reason. No results reference
// is retained for a failed batch.
func Fail(b *model.Batch, reason string, now time.Time) error {
	if b.Status != model.BatchProcessing {
		return fmt.Errorf("%w: %s → FAILED", ErrInvalidTransition, b.Status)
	}
	if reason == "" {
		return errors.New("batch: failure reason cannot be empty")
	}
	b.Status = model.BatchFailed
	b.FailureReason = reason
	b.ResultsURI = ""
	b.CompletedAt = &now
	b.DurationMillis = now.Sub(b.StartedAt).Milliseconds()
	return nil
}
