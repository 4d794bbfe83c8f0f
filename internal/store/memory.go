package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	batches   map[string]*model.Batch
	results   map[string]*model.CalculationResult
	riskParam map[string]params.RiskParameters // keyed by bank id
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:   make(map[string]*model.Batch),
		results:   make(map[string]*model.CalculationResult),
		riskParam: make(map[string]params.RiskParameters),
	}
}

func (s *MemoryStore) CreateBatch(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrBatchExists, b.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) UpdateBatch(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[b.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, b.ID)
	}
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *MemoryStore) SaveResults(_ context.Context, result *model.CalculationResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[result.BatchID]; ok {
		return "", fmt.Errorf("%w: %s", ErrResultsExist, result.BatchID)
	}
	cp := *result
	s.results[result.BatchID] = &cp
	return "mem://results/" + result.BatchID, nil
}

func (s *MemoryStore) GetResults(_ context.Context, batchID string) (*model.CalculationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultsNotFound, batchID)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) CreateRiskParameters(_ context.Context, p params.RiskParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.riskParam[p.BankID]; ok {
		return fmt.Errorf("store: risk parameters already exist for bank %s", p.BankID)
	}
	s.riskParam[p.BankID] = p
	return nil
}

func (s *MemoryStore) GetRiskParameters(_ context.Context, bankID string) (params.RiskParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.riskParam[bankID]
	if !ok {
		return params.RiskParameters{}, params.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) SaveRiskParameters(_ context.Context, p params.RiskParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.riskParam[p.BankID]
	if !ok {
		return params.ErrNotFound
	}
	if current.Version != p.Version-1 {
		metrics.ParameterConflicts.Inc()
		return &params.ConflictError{BankID: p.BankID, ExpectedVersion: p.Version - 1}
	}
	s.riskParam[p.BankID] = p
	return nil
}
