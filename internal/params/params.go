// Package params holds the per-bank risk parameter aggregate: large
// exposure limits, capital base, and concentration risk thresholds.
//
// Mutating operations are pure: they return the new aggregate state plus
// the emitted events instead of mutating hidden state. Concurrent writers
// are serialized through the optimistic version counter enforced by the
// repository — a stale write surfaces a ConflictError for the caller to
// retry, never a silent merge.
package params

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidThresholds is returned when concentration thresholds violate
	// 0 < alert < attention ≤ 100.
	ErrInvalidThresholds = errors.New("params: thresholds must satisfy 0 < alert < attention <= 100")

	// ErrInvalidMaxLargeExposures is returned when the large exposure count
	// limit is not positive.
	ErrInvalidMaxLargeExposures = errors.New("params: max large exposures must be positive")

	// ErrNegativeCapital is returned for a negative eligible capital amount.
	ErrNegativeCapital = errors.New("params: eligible capital must not be negative")

	// ErrNotFound is returned when no parameters exist for a bank.
	ErrNotFound = errors.New("params: risk parameters not found")
)

// ConflictError reports an optimistic-concurrency violation: the caller
// held a stale version and must reload and retry.
type ConflictError struct {
	BankID          string
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("params: version conflict for bank %s (expected version %d)", e.BankID, e.ExpectedVersion)
}

// capitalBaseMaxAge is how long a capital base figure counts as fresh.
const capitalBaseMaxAge = 12 * 30 * 24 * time.Hour

// LargeExposuresParameters bounds single-counterparty exposures relative to
// eligible capital (CRR Art. 395).
type LargeExposuresParameters struct {
	LimitPercent              decimal.Decimal `json:"limit_percent"`
	ReportingThresholdPercent decimal.Decimal `json:"reporting_threshold_percent"`
}

// DefaultLargeExposures returns the regulatory defaults: 25% limit,
// 10% reporting threshold.
func DefaultLargeExposures() LargeExposuresParameters {
	return LargeExposuresParameters{
		LimitPercent:              decimal.NewFromInt(25),
		ReportingThresholdPercent: decimal.NewFromInt(10),
	}
}

// Valid reports whether the parameter group is internally consistent.
func (p LargeExposuresParameters) Valid() bool {
	hundred := decimal.NewFromInt(100)
	return p.LimitPercent.IsPositive() &&
		!p.LimitPercent.GreaterThan(hundred) &&
		p.ReportingThresholdPercent.IsPositive() &&
		p.ReportingThresholdPercent.LessThanOrEqual(p.LimitPercent)
}

// CapitalBaseParameters carries the bank's eligible capital and its
// reference date.
type CapitalBaseParameters struct {
	EligibleCapitalEUR decimal.Decimal `json:"eligible_capital_eur"`
	AsOf               time.Time       `json:"as_of"`
}

// DefaultCapitalBase returns an empty capital base stamped now. The figure
// must be supplied by the bank before large-exposure checks take effect.
func DefaultCapitalBase(now time.Time) CapitalBaseParameters {
	return CapitalBaseParameters{EligibleCapitalEUR: decimal.Zero, AsOf: now}
}

// Valid reports whether the capital figure is usable.
func (p CapitalBaseParameters) Valid() bool {
	return !p.EligibleCapitalEUR.IsNegative()
}

// UpToDate reports whether the capital figure is fresh enough at now.
func (p CapitalBaseParameters) UpToDate(now time.Time) bool {
	return now.Sub(p.AsOf) <= capitalBaseMaxAge
}

// ConcentrationRiskParameters holds HHI alerting thresholds (percent of the
// HIGH boundary) and the large-exposure count cap.
type ConcentrationRiskParameters struct {
	AlertThreshold     decimal.Decimal `json:"alert_threshold"`
	AttentionThreshold decimal.Decimal `json:"attention_threshold"`
	MaxLargeExposures  int             `json:"max_large_exposures"`
}

// NewConcentrationRisk validates and constructs the group. Invariants are
// checked before any state exists: 0 < alert < attention ≤ 100 and
// maxLargeExposures > 0.
func NewConcentrationRisk(alert, attention decimal.Decimal, maxLargeExposures int) (ConcentrationRiskParameters, error) {
	hundred := decimal.NewFromInt(100)
	if !alert.IsPositive() || !alert.LessThan(attention) || attention.GreaterThan(hundred) {
		return ConcentrationRiskParameters{}, ErrInvalidThresholds
	}
	if maxLargeExposures <= 0 {
		return ConcentrationRiskParameters{}, ErrInvalidMaxLargeExposures
	}
	return ConcentrationRiskParameters{
		AlertThreshold:     alert,
		AttentionThreshold: attention,
		MaxLargeExposures:  maxLargeExposures,
	}, nil
}

// DefaultConcentrationRisk returns alert 80 / attention 95 with a cap of
// 20 large exposures.
func DefaultConcentrationRisk() ConcentrationRiskParameters {
	p, err := NewConcentrationRisk(decimal.NewFromInt(80), decimal.NewFromInt(95), 20)
	if err != nil {
		panic(err) // defaults are statically valid
	}
	return p
}

// Valid reports whether the group satisfies its construction invariants.
func (p ConcentrationRiskParameters) Valid() bool {
	_, err := NewConcentrationRisk(p.AlertThreshold, p.AttentionThreshold, p.MaxLargeExposures)
	return err == nil
}

// ValidationStatus is the recomputed compliance snapshot of the aggregate.
type ValidationStatus struct {
	Compliant       bool `json:"compliant"`
	CapitalUpToDate bool `json:"capital_up_to_date"`
}

// EventKind tags a parameter lifecycle event.
type EventKind string

const (
	EventCreated EventKind = "CREATED"
	EventUpdated EventKind = "UPDATED"
	EventReset   EventKind = "RESET"
)

// Group names the parameter group touched by an update event.
type Group string

const (
	GroupLargeExposures    Group = "LARGE_EXPOSURES"
	GroupCapitalBase       Group = "CAPITAL_BASE"
	GroupConcentrationRisk Group = "CONCENTRATION_RISK"
)

// Event is one emitted parameter lifecycle event. Group is set only for
// EventUpdated.
type Event struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	BankID string    `json:"bank_id"`
	Group  Group     `json:"group,omitempty"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// RiskParameters is the per-bank aggregate. Values are copied on mutation;
// instances are safe to share once handed out.
type RiskParameters struct {
	ID                string                      `json:"id"`
	BankID            string                      `json:"bank_id"`
	LargeExposures    LargeExposuresParameters    `json:"large_exposures"`
	CapitalBase       CapitalBaseParameters       `json:"capital_base"`
	ConcentrationRisk ConcentrationRiskParameters `json:"concentration_risk"`
	Status            ValidationStatus            `json:"status"`
	CreatedAt         time.Time                   `json:"created_at"`
	ModifiedAt        time.Time                   `json:"modified_at"`
	ModifiedBy        string                      `json:"modified_by"`
	Version           int64                       `json:"version"`
}

// CreateDefault builds a new aggregate with regulatory defaults and emits
// the Created event.
func CreateDefault(bankID, actor string) (RiskParameters, []Event) {
	now := time.Now().UTC()
	p := RiskParameters{
		ID:                uuid.New().String(),
		BankID:            bankID,
		LargeExposures:    DefaultLargeExposures(),
		CapitalBase:       DefaultCapitalBase(now),
		ConcentrationRisk: DefaultConcentrationRisk(),
		CreatedAt:         now,
		ModifiedAt:        now,
		ModifiedBy:        actor,
		Version:           1,
	}
	p.Status = p.computeStatus(now)

	return p, []Event{{
		ID:     uuid.New().String(),
		Kind:   EventCreated,
		BankID: bankID,
		Actor:  actor,
		At:     now,
	}}
}

// UpdateLargeExposures replaces the large-exposure group.
func (p RiskParameters) UpdateLargeExposures(np LargeExposuresParameters, actor string) (RiskParameters, []Event, error) {
	if !np.Valid() {
		return RiskParameters{}, nil, fmt.Errorf("params: invalid large exposure parameters")
	}
	next := p.stamped(actor)
	next.LargeExposures = np
	next.Status = next.computeStatus(next.ModifiedAt)
	return next, []Event{p.updatedEvent(GroupLargeExposures, actor, next.ModifiedAt)}, nil
}

// UpdateCapitalBase replaces the capital base group.
func (p RiskParameters) UpdateCapitalBase(np CapitalBaseParameters, actor string) (RiskParameters, []Event, error) {
	if !np.Valid() {
		return RiskParameters{}, nil, ErrNegativeCapital
	}
	next := p.stamped(actor)
	next.CapitalBase = np
	next.Status = next.computeStatus(next.ModifiedAt)
	return next, []Event{p.updatedEvent(GroupCapitalBase, actor, next.ModifiedAt)}, nil
}

// UpdateConcentrationRisk replaces the concentration risk group. The group
// must already have passed NewConcentrationRisk; it is re-checked here so a
// zero-value struct cannot slip in.
func (p RiskParameters) UpdateConcentrationRisk(np ConcentrationRiskParameters, actor string) (RiskParameters, []Event, error) {
	if _, err := NewConcentrationRisk(np.AlertThreshold, np.AttentionThreshold, np.MaxLargeExposures); err != nil {
		return RiskParameters{}, nil, err
	}
	next := p.stamped(actor)
	next.ConcentrationRisk = np
	next.Status = next.computeStatus(next.ModifiedAt)
	return next, []Event{p.updatedEvent(GroupConcentrationRisk, actor, next.ModifiedAt)}, nil
}

// ResetToDefault restores every group to its default and emits Reset.
func (p RiskParameters) ResetToDefault(actor string) (RiskParameters, []Event) {
	next := p.stamped(actor)
	next.LargeExposures = DefaultLargeExposures()
	next.CapitalBase = DefaultCapitalBase(next.ModifiedAt)
	next.ConcentrationRisk = DefaultConcentrationRisk()
	next.Status = next.computeStatus(next.ModifiedAt)
	return next, []Event{{
		ID:     uuid.New().String(),
		Kind:   EventReset,
		BankID: p.BankID,
		Actor:  actor,
		At:     next.ModifiedAt,
	}}
}

// Validate recomputes the validation status as a pure function of nested
// group validity and capital freshness. No I/O, no events.
func (p RiskParameters) Validate(now time.Time) RiskParameters {
	p.Status = p.computeStatus(now)
	return p
}

func (p RiskParameters) computeStatus(now time.Time) ValidationStatus {
	return ValidationStatus{
		Compliant:       p.LargeExposures.Valid() && p.CapitalBase.Valid() && p.ConcentrationRisk.Valid(),
		CapitalUpToDate: p.CapitalBase.UpToDate(now),
	}
}

func (p RiskParameters) stamped(actor string) RiskParameters {
	p.ModifiedAt = time.Now().UTC()
	p.ModifiedBy = actor
	p.Version++
	return p
}

func (p RiskParameters) updatedEvent(group Group, actor string, at time.Time) Event {
	return Event{
		ID:     uuid.New().String(),
		Kind:   EventUpdated,
		BankID: p.BankID,
		Group:  group,
		Actor:  actor,
		At:     at,
	}
}

// Repository persists risk parameter aggregates with optimistic
// concurrency. Save succeeds only when the stored version is exactly
// p.Version-1; otherwise it returns *ConflictError.
type Repository interface {
	Create(ctx context.Context, p RiskParameters) error
	Get(ctx context.Context, bankID string) (RiskParameters, error)
	Save(ctx context.Context, p RiskParameters) error
}
