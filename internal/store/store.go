// Package store defines persistence for the risk engine. PostgreSQL is the
// source of truth; an in-memory implementation serves tests and local
// development. Calculation result artifacts are write-once: a second write
// for the same batch id is an immutability violation, never an update.
package store

import (
	"context"
	"errors"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
)

var (
	// ErrBatchNotFound is returned when no batch exists for an id.
	ErrBatchNotFound = errors.New("store: batch not found")

	// ErrBatchExists is returned when creating a batch whose id is taken.
	ErrBatchExists = errors.New("store: batch already exists")

	// ErrResultsExist is the immutability violation: a result artifact for
	// this batch id was already written and must not be replaced.
	ErrResultsExist = errors.New("store: calculation results already written for batch")

	// ErrResultsNotFound is returned when no artifact exists for a batch.
	ErrResultsNotFound = errors.New("store: calculation results not found")
)

// Store is the persistence interface for batches, write-once result
// artifacts, and per-bank risk parameters.
type Store interface {
	// --- Batch lifecycle ---

	// CreateBatch persists a new batch in its initial state.
	CreateBatch(ctx context.Context, b *model.Batch) error

	// GetBatch retrieves a batch by id.
	GetBatch(ctx context.Context, id string) (*model.Batch, error)

	// UpdateBatch persists a batch state transition.
	UpdateBatch(ctx context.Context, b *model.Batch) error

	// --- Immutable result artifacts ---

	// SaveResults writes the calculation result artifact exactly once and
	// returns its storage URI. A second call for the same batch id returns
	// ErrResultsExist and leaves the original untouched.
	SaveResults(ctx context.Context, result *model.CalculationResult) (string, error)

	// GetResults retrieves the artifact for a batch id.
	GetResults(ctx context.Context, batchID string) (*model.CalculationResult, error)

	// --- Risk parameters (optimistic concurrency) ---

	// CreateRiskParameters inserts a new aggregate (version 1).
	CreateRiskParameters(ctx context.Context, p params.RiskParameters) error

	// GetRiskParameters loads the aggregate for a bank.
	GetRiskParameters(ctx context.Context, bankID string) (params.RiskParameters, error)

	// SaveRiskParameters updates the aggregate only when the stored version
	// is exactly p.Version-1; otherwise it returns *params.ConflictError.
	SaveRiskParameters(ctx context.Context, p params.RiskParameters) error
}

// ParamsRepository adapts a Store to the params.Repository interface.
type ParamsRepository struct {
	Store Store
}

func (r ParamsRepository) Create(ctx context.Context, p params.RiskParameters) error {
	return r.Store.CreateRiskParameters(ctx, p)
}

func (r ParamsRepository) Get(ctx context.Context, bankID string) (params.RiskParameters, error) {
	return r.Store.GetRiskParameters(ctx, bankID)
}

func (r ParamsRepository) Save(ctx context.Context, p params.RiskParameters) error {
	return r.Store.SaveRiskParameters(ctx, p)
}
