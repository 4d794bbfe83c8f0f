package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
)

func TestMemoryStore_BatchLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	b := &model.Batch{ID: "B-1", BankID: "BANK-001", Status: model.BatchPending, TotalExposures: 3}
	if err := s.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := s.CreateBatch(ctx, b); !errors.Is(err, ErrBatchExists) {
		t.Errorf("duplicate create err = %v, want ErrBatchExists", err)
	}

	b.Status = model.BatchProcessing
	if err := s.UpdateBatch(ctx, b); err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}

	got, err := s.GetBatch(ctx, "B-1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != model.BatchProcessing {
		t.Errorf("status = %s, want PROCESSING", got.Status)
	}

	// The returned batch is a copy: mutating it must not leak into the store.
	got.Status = model.BatchFailed
	again, _ := s.GetBatch(ctx, "B-1")
	if again.Status != model.BatchProcessing {
		t.Error("mutation of returned batch leaked into store")
	}

	if _, err := s.GetBatch(ctx, "missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("err = %v, want ErrBatchNotFound", err)
	}
	if err := s.UpdateBatch(ctx, &model.Batch{ID: "missing"}); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("update missing err = %v, want ErrBatchNotFound", err)
	}
}

func TestMemoryStore_ResultsAreWriteOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &model.CalculationResult{BatchID: "B-1", TotalEUR: decimal.NewFromInt(100)}
	uri, err := s.SaveResults(ctx, first)
	if err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	if uri != "mem://results/B-1" {
		t.Errorf("uri = %q", uri)
	}

	second := &model.CalculationResult{BatchID: "B-1", TotalEUR: decimal.NewFromInt(999)}
	if _, err := s.SaveResults(ctx, second); !errors.Is(err, ErrResultsExist) {
		t.Fatalf("second write err = %v, want ErrResultsExist", err)
	}

	// The original artifact survives untouched.
	got, err := s.GetResults(ctx, "B-1")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if !got.TotalEUR.Equal(decimal.NewFromInt(100)) {
		t.Errorf("total = %s, original artifact was replaced", got.TotalEUR)
	}

	if _, err := s.GetResults(ctx, "missing"); !errors.Is(err, ErrResultsNotFound) {
		t.Errorf("err = %v, want ErrResultsNotFound", err)
	}
}

func TestMemoryStore_RiskParametersOptimisticConcurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p, _ := params.CreateDefault("BANK-001", "alice")
	if err := s.CreateRiskParameters(ctx, p); err != nil {
		t.Fatalf("CreateRiskParameters: %v", err)
	}

	// Two writers load version 1 concurrently.
	a, _ := s.GetRiskParameters(ctx, "BANK-001")
	b, _ := s.GetRiskParameters(ctx, "BANK-001")

	a2, _, err := a.UpdateCapitalBase(params.CapitalBaseParameters{
		EligibleCapitalEUR: decimal.NewFromInt(1_000_000),
		AsOf:               a.ModifiedAt,
	}, "alice")
	if err != nil {
		t.Fatalf("UpdateCapitalBase: %v", err)
	}
	if err := s.SaveRiskParameters(ctx, a2); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// The second writer is now stale and must get a conflict, not a merge.
	b2, _, err := b.UpdateCapitalBase(params.CapitalBaseParameters{
		EligibleCapitalEUR: decimal.NewFromInt(2_000_000),
		AsOf:               b.ModifiedAt,
	}, "bob")
	if err != nil {
		t.Fatalf("UpdateCapitalBase: %v", err)
	}
	var conflict *params.ConflictError
	if err := s.SaveRiskParameters(ctx, b2); !errors.As(err, &conflict) {
		t.Fatalf("stale save err = %v, want *params.ConflictError", err)
	}
	if conflict.BankID != "BANK-001" {
		t.Errorf("conflict = %+v", conflict)
	}

	// The first writer's state won.
	current, _ := s.GetRiskParameters(ctx, "BANK-001")
	if !current.CapitalBase.EligibleCapitalEUR.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("capital = %s, want 1000000", current.CapitalBase.EligibleCapitalEUR)
	}
	if current.Version != 2 {
		t.Errorf("version = %d, want 2", current.Version)
	}

	if _, err := s.GetRiskParameters(ctx, "missing"); !errors.Is(err, params.ErrNotFound) {
		t.Errorf("err = %v, want params.ErrNotFound", err)
	}
}

func TestParamsRepository_AdaptsStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var repo params.Repository = ParamsRepository{Store: s}

	p, _ := params.CreateDefault("BANK-002", "svc")
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.Get(ctx, "BANK-002")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.BankID != "BANK-002" || got.Version != 1 {
		t.Errorf("got = %+v", got)
	}
}
