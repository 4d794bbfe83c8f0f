package batch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/events"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/rates"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/store"
)

// fixedRates quotes USD→EUR at 0.9 and errors on anything else.
var fixedRates = rates.ProviderFunc(func(_ context.Context, from, to string, date time.Time) (model.ExchangeRate, error) {
	if from == "USD" && to == "EUR" {
		return model.ExchangeRate{
			Rate: decimal.NewFromFloat(0.9),
			From: from, To: to, Date: date,
		}, nil
	}
	return model.ExchangeRate{}, rates.ErrRateMissing
})

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// threeExposures is the reference scenario: an Italian mortgage in EUR, a
// US government bond in USD with partial mitigation, and a fully mitigated
// German interbank line.
func threeExposures() []model.RawExposure {
	return []model.RawExposure{
		{
			ID: "E1", Counterparty: "CASA-SRL", Currency: "EUR",
			GrossAmount: amount(1_000_000), CountryCode: "IT", ProductType: "MORTGAGE LOAN",
		},
		{
			ID: "E2", Counterparty: "US-TREASURY", Currency: "USD",
			GrossAmount: amount(500_000), CountryCode: "US", ProductType: "GOVERNMENT BOND",
			Mitigations: []decimal.Decimal{amount(200_000)},
		},
		{
			ID: "E3", Counterparty: "DE-BANK", Currency: "EUR",
			GrossAmount: amount(300_000), CountryCode: "DE", ProductType: "INTERBANK DEPOSIT",
			Mitigations: []decimal.Decimal{amount(350_000)},
		},
	}
}

func newTestOrchestrator(st store.Store, pub events.Publisher, cfg Config) *Orchestrator {
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	return NewOrchestrator(st, fixedRates, pub, cfg)
}

func TestRun_EndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	pub := events.NewMemoryPublisher()
	o := newTestOrchestrator(st, pub, Config{})

	b, err := o.Run(context.Background(), "BANK-001", "B-001", threeExposures())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Status != model.BatchCompleted {
		t.Fatalf("status = %s, want COMPLETED", b.Status)
	}
	if b.FailedCount != 0 || b.ResultsURI == "" {
		t.Errorf("batch = %+v", b)
	}

	result, err := st.GetResults(context.Background(), "B-001")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}

	// E1 nets 1,000,000; E2 converts to 450,000 then nets 250,000;
	// E3 is fully mitigated to zero. Total 1,250,000.
	if !result.TotalEUR.Equal(amount(1_250_000)) {
		t.Errorf("total = %s, want 1250000", result.TotalEUR)
	}
	if result.ProcessedExposures != 3 {
		t.Errorf("processed = %d, want 3", result.ProcessedExposures)
	}

	wantRegions := map[string]string{
		"ITALY":        "0.8",
		"NON_EUROPEAN": "0.2",
		"EU_OTHER":     "0",
	}
	for region, share := range wantRegions {
		if got := result.RegionShares[region]; got != share {
			t.Errorf("region share %s = %s, want %s", region, got, share)
		}
	}
	if got := result.SectorShares["RETAIL_MORTGAGE"]; got != "0.8" {
		t.Errorf("sector share RETAIL_MORTGAGE = %s, want 0.8", got)
	}

	// 0.8² + 0.2² + 0² = 0.68 on both dimensions.
	wantHHI := decimal.RequireFromString("0.68")
	if !result.RegionHHI.Equal(wantHHI) || result.RegionLevel != "HIGH" {
		t.Errorf("region HHI = %s (%s), want 0.68 (HIGH)", result.RegionHHI, result.RegionLevel)
	}
	if !result.SectorHHI.Equal(wantHHI) || result.SectorLevel != "HIGH" {
		t.Errorf("sector HHI = %s (%s), want 0.68 (HIGH)", result.SectorHHI, result.SectorLevel)
	}

	if len(result.Failures) != 0 {
		t.Errorf("failures = %v, want none", result.Failures)
	}

	evs := pub.Events()
	if len(evs) != 2 || evs[0].Type != events.TypeBatchStarted || evs[1].Type != events.TypeBatchCompleted {
		t.Errorf("events = %v, want [batch.started batch.completed]", evs)
	}
	if evs[1].ProcessedCount != 3 || evs[1].ResultsURI != b.ResultsURI {
		t.Errorf("completed event = %+v", evs[1])
	}
}

func TestRun_RejectsReusedBatchID(t *testing.T) {
	st := store.NewMemoryStore()
	o := newTestOrchestrator(st, events.NewMemoryPublisher(), Config{})

	if _, err := o.Run(context.Background(), "BANK-001", "B-001", threeExposures()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := st.GetResults(context.Background(), "B-001")

	_, err := o.Run(context.Background(), "BANK-001", "B-001", nil)
	if !errors.Is(err, store.ErrBatchExists) {
		t.Fatalf("second run err = %v, want ErrBatchExists", err)
	}

	// The original artifact must be untouched.
	again, err := st.GetResults(context.Background(), "B-001")
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if !again.CalculatedAt.Equal(first.CalculatedAt) || !again.TotalEUR.Equal(first.TotalEUR) {
		t.Error("result artifact changed after rejected re-run")
	}
}

func TestRun_CollectsFailuresAndCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	o := newTestOrchestrator(st, events.NewMemoryPublisher(), Config{})

	exposures := append(threeExposures(), model.RawExposure{
		ID: "E4", Counterparty: "BAD", Currency: "EURO", // not ISO 4217
		GrossAmount: amount(100), CountryCode: "IT", ProductType: "MORTGAGE",
	})

	b, err := o.Run(context.Background(), "BANK-001", "B-002", exposures)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Status != model.BatchCompleted || b.FailedCount != 1 {
		t.Fatalf("batch = %+v, want COMPLETED with 1 failure", b)
	}

	result, _ := st.GetResults(context.Background(), "B-002")
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %v", result.Failures)
	}
	f := result.Failures[0]
	if f.ExposureID != "E4" || f.Kind != model.ErrKindValidation {
		t.Errorf("failure = %+v, want E4/VALIDATION", f)
	}
	// The failed exposure contributes nothing to the totals.
	if !result.TotalEUR.Equal(amount(1_250_000)) {
		t.Errorf("total = %s, want 1250000", result.TotalEUR)
	}
}

func TestRun_FailurePolicyFailsBatch(t *testing.T) {
	st := store.NewMemoryStore()
	pub := events.NewMemoryPublisher()
	broken := rates.ProviderFunc(func(context.Context, string, string, time.Time) (model.ExchangeRate, error) {
		return model.ExchangeRate{}, rates.ErrStatus
	})
	o := NewOrchestrator(st, broken, pub, Config{Workers: 2, Policy: MaxFailureRatio(0.5)})

	exposures := []model.RawExposure{
		{ID: "E1", Counterparty: "A", Currency: "USD", GrossAmount: amount(100), CountryCode: "US", ProductType: "BOND"},
		{ID: "E2", Counterparty: "B", Currency: "GBP", GrossAmount: amount(200), CountryCode: "GB", ProductType: "BOND"},
	}
	b, err := o.Run(context.Background(), "BANK-001", "B-003", exposures)
	if err == nil {
		t.Fatal("expected error for failed batch")
	}
	if b.Status != model.BatchFailed {
		t.Fatalf("status = %s, want FAILED", b.Status)
	}
	if !strings.Contains(b.FailureReason, "2 of 2") {
		t.Errorf("reason = %q", b.FailureReason)
	}

	// No artifact is written for a failed batch.
	if _, err := st.GetResults(context.Background(), "B-003"); !errors.Is(err, store.ErrResultsNotFound) {
		t.Errorf("GetResults err = %v, want ErrResultsNotFound", err)
	}

	evs := pub.Events()
	if len(evs) != 2 || evs[1].Type != events.TypeBatchFailed {
		t.Errorf("events = %v, want batch.failed last", evs)
	}
}

func TestRun_EmptyBatchCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	o := newTestOrchestrator(st, events.NewMemoryPublisher(), Config{})

	b, err := o.Run(context.Background(), "BANK-001", "B-004", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Status != model.BatchCompleted {
		t.Fatalf("status = %s, want COMPLETED", b.Status)
	}

	result, _ := st.GetResults(context.Background(), "B-004")
	if !result.RegionHHI.IsZero() || result.RegionLevel != "LOW" {
		t.Errorf("empty batch HHI = %s (%s), want 0 (LOW)", result.RegionHHI, result.RegionLevel)
	}
	if result.ProcessedExposures != 0 || len(result.RegionShares) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestRun_DeadlineFailsBatch(t *testing.T) {
	st := store.NewMemoryStore()
	stuck := rates.ProviderFunc(func(ctx context.Context, _, _ string, _ time.Time) (model.ExchangeRate, error) {
		<-ctx.Done()
		return model.ExchangeRate{}, ctx.Err()
	})
	o := NewOrchestrator(st, stuck, events.NewMemoryPublisher(), Config{
		Workers:     1,
		RunDeadline: 20 * time.Millisecond,
	})

	exposures := []model.RawExposure{
		{ID: "E1", Counterparty: "A", Currency: "USD", GrossAmount: amount(100), CountryCode: "US", ProductType: "BOND"},
	}
	b, err := o.Run(context.Background(), "BANK-001", "B-005", exposures)
	if err == nil {
		t.Fatal("expected error for deadline-exceeded batch")
	}
	if b.Status != model.BatchFailed {
		t.Fatalf("status = %s, want FAILED", b.Status)
	}
	if !strings.Contains(b.FailureReason, "deadline") {
		t.Errorf("reason = %q, want deadline mention", b.FailureReason)
	}
}

func TestRun_FlagsLargeExposures(t *testing.T) {
	st := store.NewMemoryStore()

	// Capital 1,000,000 at the default 25% limit → threshold 250,000.
	// CASA-SRL (1,000,000 net) breaches; US-TREASURY (250,000) sits on the
	// limit and does not.
	p, _ := params.CreateDefault("BANK-001", "test")
	p, _, err := p.UpdateCapitalBase(params.CapitalBaseParameters{
		EligibleCapitalEUR: amount(1_000_000),
		AsOf:               time.Now().UTC(),
	}, "test")
	if err != nil {
		t.Fatalf("UpdateCapitalBase: %v", err)
	}
	if err := st.CreateRiskParameters(context.Background(), p); err != nil {
		t.Fatalf("CreateRiskParameters: %v", err)
	}

	o := newTestOrchestrator(st, events.NewMemoryPublisher(), Config{})
	if _, err := o.Run(context.Background(), "BANK-001", "B-006", threeExposures()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	result, _ := st.GetResults(context.Background(), "B-006")
	if len(result.LargeExposures) != 1 || result.LargeExposures[0] != "CASA-SRL" {
		t.Errorf("large exposures = %v, want [CASA-SRL]", result.LargeExposures)
	}
}

func TestMaxFailureRatio(t *testing.T) {
	cases := []struct {
		ratio  float64
		failed int
		total  int
		want   bool
	}{
		{0.5, 1, 4, false},
		{0.5, 2, 4, false}, // exactly at the ratio tolerates
		{0.5, 3, 4, true},
		{0, 1, 10, true}, // zero tolerance
		{0, 0, 10, false},
		{0.5, 0, 0, false}, // empty batch never fails on ratio
	}
	for _, tc := range cases {
		if got := MaxFailureRatio(tc.ratio)(tc.failed, tc.total); got != tc.want {
			t.Errorf("MaxFailureRatio(%v)(%d, %d) = %v, want %v", tc.ratio, tc.failed, tc.total, got, tc.want)
		}
	}
}
