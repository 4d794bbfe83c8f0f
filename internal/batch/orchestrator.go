package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/classify"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/events"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/limits"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/netting"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/portfolio"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/rates"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/store"
)

// FailurePolicy decides whether a finished run must end FAILED based on how
// many exposures could not be processed. Per-exposure failures are collected
// either way; the policy only picks the terminal state.
type FailurePolicy func(failed, total int) bool

// MaxFailureRatio fails the batch when more than ratio of its exposures
// failed. MaxFailureRatio(0) fails on any error; a nil policy never fails
// on per-exposure errors alone.
func MaxFailureRatio(ratio float64) FailurePolicy {
	return func(failed, total int) bool {
		if total == 0 {
			return false
		}
		return float64(failed)/float64(total) > ratio
	}
}

// Config carries the orchestrator's tuning knobs.
type Config struct {
	// Workers bounds the concurrent per-exposure pipeline. Zero means 1.
	Workers int

	// RunDeadline caps a full batch run. Zero means no deadline.
	RunDeadline time.Duration

	// Policy decides COMPLETED vs FAILED from the failure count.
	// Nil tolerates any number of per-exposure failures.
	Policy FailurePolicy
}

// Orchestrator runs one batch through the full pipeline: classify, convert
// to EUR, net mitigations, aggregate, check limits, persist the write-once
// result artifact, and emit lifecycle events.
type Orchestrator struct {
	store     store.Store
	rates     rates.Provider
	publisher events.Publisher
	checker   limits.Checker
	agg       portfolio.Aggregator
	cfg       Config
	log       *slog.Logger
}

// NewOrchestrator wires the orchestrator's dependencies.
func NewOrchestrator(st store.Store, rateSrc rates.Provider, pub events.Publisher, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		store:     st,
		rates:     rateSrc,
		publisher: pub,
		cfg:       cfg,
		log:       slog.Default().With("component", "orchestrator"),
	}
}

// Run executes the batch end to end and returns the batch in its terminal
// state. A batch id already used — finished or in flight — is rejected with
// store.ErrBatchExists; a retry must use a fresh id.
func (o *Orchestrator) Run(ctx context.Context, bankID, batchID string, exposures []model.RawExposure) (*model.Batch, error) {
	b, err := New(batchID, bankID, len(exposures))
	if err != nil {
		return nil, err
	}
	if err := o.store.CreateBatch(ctx, b); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := Start(b, now); err != nil {
		return nil, err
	}
	if err := o.store.UpdateBatch(ctx, b); err != nil {
		return nil, err
	}
	o.publish(ctx, events.BatchStarted(b.ID, b.BankID, b.TotalExposures))
	o.log.Info("batch started", "batch_id", b.ID, "bank_id", b.BankID, "exposures", b.TotalExposures)

	metrics.ActiveBatches.Inc()
	defer metrics.ActiveBatches.Dec()

	runCtx := ctx
	if o.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunDeadline)
		defer cancel()
	}

	classified, protected, failures := o.mapExposures(runCtx, b.StartedAt, exposures)

	if err := runCtx.Err(); err != nil {
		reason := "batch run cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("batch run exceeded deadline of %s", o.cfg.RunDeadline)
		}
		return o.fail(ctx, b, reason)
	}

	for _, f := range failures {
		metrics.ExposureFailures.WithLabelValues(string(f.Kind)).Inc()
	}
	metrics.ExposuresProcessed.Add(float64(len(classified)))

	if o.cfg.Policy != nil && o.cfg.Policy(len(failures), len(exposures)) {
		reason := fmt.Sprintf("%d of %d exposures failed", len(failures), len(exposures))
		return o.fail(ctx, b, reason)
	}

	result, err := o.reduce(ctx, b, classified, protected, failures)
	if err != nil {
		return o.fail(ctx, b, err.Error())
	}

	uri, err := o.store.SaveResults(ctx, result)
	if err != nil {
		// ErrResultsExist included: the artifact is write-once and a clash
		// means this batch id was already calculated.
		return o.fail(ctx, b, fmt.Sprintf("persist results: %v", err))
	}

	done := time.Now().UTC()
	if err := Complete(b, uri, len(failures), done); err != nil {
		return nil, err
	}
	if err := o.store.UpdateBatch(ctx, b); err != nil {
		return nil, err
	}

	metrics.BatchesTotal.WithLabelValues(string(model.BatchCompleted)).Inc()
	metrics.BatchDuration.Observe(done.Sub(b.StartedAt).Seconds())
	o.publish(ctx, events.BatchCompleted(b, result))
	o.log.Info("batch completed",
		"batch_id", b.ID,
		"processed", result.ProcessedExposures,
		"failed", len(failures),
		"duration_ms", b.DurationMillis,
		"results_uri", uri)
	return b, nil
}

// mapExposures runs the per-exposure pipeline across a bounded worker pool.
// Results keep submission order; failures are collected, not fatal.
func (o *Orchestrator) mapExposures(ctx context.Context, asOf time.Time, exposures []model.RawExposure) ([]model.ClassifiedExposure, []model.ProtectedExposure, []model.ExposureError) {
	type slot struct {
		classified model.ClassifiedExposure
		protected  model.ProtectedExposure
		failure    *model.ExposureError
		done       bool
	}
	slots := make([]slot, len(exposures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, raw := range exposures {
		i, raw := i, raw
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, p, err := o.processOne(gctx, asOf, raw)
			if err != nil {
				var ee model.ExposureError
				if !errors.As(err, &ee) {
					ee = model.ExposureError{ExposureID: raw.ID, Kind: model.ErrKindProvider, Message: err.Error()}
				}
				slots[i].failure = &ee
				return nil
			}
			slots[i].classified = c
			slots[i].protected = p
			slots[i].done = true
			return nil
		})
	}
	// Workers only return context errors; per-exposure failures live in slots.
	_ = g.Wait()

	classified := make([]model.ClassifiedExposure, 0, len(exposures))
	protected := make([]model.ProtectedExposure, 0, len(exposures))
	var failures []model.ExposureError
	for i, s := range slots {
		switch {
		case s.failure != nil:
			failures = append(failures, *s.failure)
		case s.done:
			classified = append(classified, s.classified)
			protected = append(protected, s.protected)
		default:
			// Never ran: the run context ended before this slot was picked up.
			failures = append(failures, model.ExposureError{
				ExposureID: exposures[i].ID,
				Kind:       model.ErrKindProvider,
				Message:    "exposure not processed before batch run ended",
			})
		}
	}
	return classified, protected, failures
}

// processOne takes one raw exposure through validate → classify → convert →
// net. Errors come back as model.ExposureError tagged with the right kind.
func (o *Orchestrator) processOne(ctx context.Context, asOf time.Time, raw model.RawExposure) (model.ClassifiedExposure, model.ProtectedExposure, error) {
	fail := func(kind model.ErrorKind, err error) (model.ClassifiedExposure, model.ProtectedExposure, error) {
		return model.ClassifiedExposure{}, model.ProtectedExposure{}, model.ExposureError{
			ExposureID: raw.ID,
			Kind:       kind,
			Message:    err.Error(),
		}
	}

	if err := model.ValidateCurrency(raw.Currency); err != nil {
		return fail(model.ErrKindValidation, err)
	}
	if raw.GrossAmount.IsNegative() {
		return fail(model.ErrKindValidation, netting.ErrNegativeGross)
	}

	region := classify.Region(raw.CountryCode)
	sector := classify.Sector(raw.ProductType)

	grossEUR, err := rates.ToEUR(ctx, o.rates, raw.GrossAmount, raw.Currency, asOf)
	if err != nil {
		switch {
		case errors.Is(err, rates.ErrParse):
			return fail(model.ErrKindParse, err)
		default:
			return fail(model.ErrKindProvider, err)
		}
	}

	prot, err := netting.Net(raw.ID, grossEUR, raw.Mitigations)
	if err != nil {
		return fail(model.ErrKindValidation, err)
	}

	return model.ClassifiedExposure{
		ExposureID:   raw.ID,
		Counterparty: raw.Counterparty,
		NetEUR:       prot.NetEUR,
		Region:       region,
		Sector:       sector,
	}, prot, nil
}

// reduce aggregates the mapped exposures into the result artifact: region
// and sector breakdowns, HHI levels, and the large-exposure check against
// the bank's risk parameters.
func (o *Orchestrator) reduce(ctx context.Context, b *model.Batch, classified []model.ClassifiedExposure, protected []model.ProtectedExposure, failures []model.ExposureError) (*model.CalculationResult, error) {
	byRegion, err := o.agg.ByRegion(classified)
	if err != nil {
		return nil, fmt.Errorf("aggregate by region: %w", err)
	}
	bySector, err := o.agg.BySector(classified)
	if err != nil {
		return nil, fmt.Errorf("aggregate by sector: %w", err)
	}
	regionHHI := portfolio.CalculateHHI(byRegion)
	sectorHHI := portfolio.CalculateHHI(bySector)

	var large []string
	switch p, err := o.store.GetRiskParameters(ctx, b.BankID); {
	case err == nil:
		large, err = o.checker.LargeExposures(classified, p)
		if errors.Is(err, limits.ErrTooManyLargeExposures) {
			// The breach count is reported, not fatal: the regulator wants
			// the numbers, not a missing report.
			o.log.Warn("large exposure count over maximum",
				"batch_id", b.ID, "count", len(large), "max", p.ConcentrationRisk.MaxLargeExposures)
		} else if err != nil {
			return nil, fmt.Errorf("large exposure check: %w", err)
		}
	case errors.Is(err, params.ErrNotFound):
		o.log.Warn("no risk parameters for bank, skipping limit checks", "bank_id", b.BankID)
	default:
		return nil, fmt.Errorf("load risk parameters: %w", err)
	}

	if failures == nil {
		failures = []model.ExposureError{}
	}
	return &model.CalculationResult{
		BatchID:            b.ID,
		BankID:             b.BankID,
		Classified:         classified,
		Protected:          protected,
		TotalEUR:           byRegion.Total,
		RegionShares:       byRegion.FractionMap(),
		SectorShares:       bySector.FractionMap(),
		RegionHHI:          regionHHI.Value,
		RegionLevel:        string(regionHHI.Level),
		SectorHHI:          sectorHHI.Value,
		SectorLevel:        string(sectorHHI.Level),
		LargeExposures:     large,
		Failures:           failures,
		ProcessedExposures: len(classified),
		CalculatedAt:       time.Now().UTC(),
	}, nil
}

// fail drives the batch to FAILED and reports the run as an error.
func (o *Orchestrator) fail(ctx context.Context, b *model.Batch, reason string) (*model.Batch, error) {
	done := time.Now().UTC()
	if err := Fail(b, reason, done); err != nil {
		return nil, err
	}
	if err := o.store.UpdateBatch(ctx, b); err != nil {
		return nil, err
	}
	metrics.BatchesTotal.WithLabelValues(string(model.BatchFailed)).Inc()
	metrics.BatchDuration.Observe(done.Sub(b.StartedAt).Seconds())
	o.publish(ctx, events.BatchFailed(b.ID, b.BankID, reason))
	o.log.Error("batch failed", "batch_id", b.ID, "reason", reason)
	return b, fmt.Errorf("batch %s failed: %s", b.ID, reason)
}

// publish delivers an event best-effort. Event delivery never decides the
// fate of a batch.
func (o *Orchestrator) publish(ctx context.Context, e events.Event) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, e); err != nil {
		o.log.Warn("event publish failed", "type", string(e.Type), "err", err)
	}
}
