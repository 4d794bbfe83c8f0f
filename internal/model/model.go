// Package model defines the core domain types shared across the risk engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EURScale is the number of decimal places for EUR amounts after conversion.
const EURScale int32 = 2

// ReportingCurrency is the currency every exposure is converted into.
const ReportingCurrency = "EUR"

// GeographicRegion buckets an exposure by counterparty country.
type GeographicRegion string

const (
	RegionItaly       GeographicRegion = "ITALY"
	RegionEUOther     GeographicRegion = "EU_OTHER"
	RegionNonEuropean GeographicRegion = "NON_EUROPEAN"
)

// EconomicSector buckets an exposure by product type.
type EconomicSector string

const (
	SectorRetailMortgage EconomicSector = "RETAIL_MORTGAGE"
	SectorSovereign      EconomicSector = "SOVEREIGN"
	SectorBanking        EconomicSector = "BANKING"
	SectorCorporate      EconomicSector = "CORPORATE"
	SectorOther          EconomicSector = "OTHER"
)

// RawExposure is one already-parsed exposure record handed over by the
// ingestion service. The engine never reads source files itself.
type RawExposure struct {
	ID           string            `json:"id"`
	Counterparty string            `json:"counterparty"`
	Currency     string            `json:"currency"`
	GrossAmount  decimal.Decimal   `json:"gross_amount"`
	CountryCode  string            `json:"country_code"`
	ProductType  string            `json:"product_type"`
	Mitigations  []decimal.Decimal `json:"mitigations"` // EUR-equivalent values
}

// ErrInvalidCurrency is returned for currency codes that are not
// three-letter ISO 4217 codes.
var ErrInvalidCurrency = errors.New("model: invalid currency code")

// ValidateCurrency checks that code looks like an ISO 4217 currency code.
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return nil
}

// Mitigation is a credit-risk-mitigation instrument already expressed as an
// EUR-equivalent value. Immutable once created.
type Mitigation struct {
	ValueEUR decimal.Decimal `json:"value_eur"`
}

// ProtectedExposure is a gross exposure with mitigations applied.
// Invariant: NetEUR = max(GrossEUR − Σ mitigations, 0), never negative.
type ProtectedExposure struct {
	ExposureID  string          `json:"exposure_id"`
	GrossEUR    decimal.Decimal `json:"gross_eur"`
	Mitigations []Mitigation    `json:"mitigations"`
	NetEUR      decimal.Decimal `json:"net_eur"`
}

// ClassifiedExposure is the per-exposure pipeline output: the net EUR amount
// tagged with region and sector. Derived per run, never persisted on its own.
type ClassifiedExposure struct {
	ExposureID   string           `json:"exposure_id"`
	Counterparty string           `json:"counterparty"`
	NetEUR       decimal.Decimal  `json:"net_eur"`
	Region       GeographicRegion `json:"region"`
	Sector       EconomicSector   `json:"sector"`
}

// ExchangeRate is one quoted conversion rate for a (from, to, date) triple.
type ExchangeRate struct {
	Rate decimal.Decimal `json:"rate"`
	From string          `json:"from"`
	To   string          `json:"to"`
	Date time.Time       `json:"date"`
}

// ErrorKind partitions per-exposure failures for reporting and policy.
type ErrorKind string

const (
	ErrKindValidation ErrorKind = "VALIDATION"
	ErrKindProvider   ErrorKind = "PROVIDER"
	ErrKindParse      ErrorKind = "PARSE"
)

// ExposureError records one failed exposure inside an otherwise
// successful batch. Collected, not fatal by default.
type ExposureError struct {
	ExposureID string    `json:"exposure_id"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}

func (e ExposureError) Error() string {
	return fmt.Sprintf("exposure %s: %s: %s", e.ExposureID, e.Kind, e.Message)
}

// BatchStatus is the batch lifecycle state.
// PENDING → PROCESSING → {COMPLETED | FAILED}; terminal states never change.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Batch tracks one submitted exposure set through its lifecycle.
// Mutated only through the orchestrator's state machine.
type Batch struct {
	ID             string      `json:"id" db:"id"`
	BankID         string      `json:"bank_id" db:"bank_id"`
	Status         BatchStatus `json:"status" db:"status"`
	TotalExposures int         `json:"total_exposures" db:"total_exposures"`
	FailedCount    int         `json:"failed_count" db:"failed_count"`
	ResultsURI     string      `json:"results_uri,omitempty" db:"results_uri"`
	FailureReason  string      `json:"failure_reason,omitempty" db:"failure_reason"`
	StartedAt      time.Time   `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	DurationMillis int64       `json:"duration_ms" db:"duration_ms"`
}

// CalculationResult is the write-once artifact persisted for a completed
// batch run. It is the audit record: a second write for the same batch id
// must be rejected, leaving the original untouched.
type CalculationResult struct {
	BatchID            string               `json:"batch_id"`
	BankID             string               `json:"bank_id"`
	Classified         []ClassifiedExposure `json:"classified_exposures"`
	Protected          []ProtectedExposure  `json:"protected_exposures"`
	TotalEUR           decimal.Decimal      `json:"total_eur"`
	RegionShares       map[string]string    `json:"region_shares"` // category → decimal share
	SectorShares       map[string]string    `json:"sector_shares"`
	RegionHHI          decimal.Decimal      `json:"region_hhi"`
	RegionLevel        string               `json:"region_concentration"`
	SectorHHI          decimal.Decimal      `json:"sector_hhi"`
	SectorLevel        string               `json:"sector_concentration"`
	LargeExposures     []string             `json:"large_exposures,omitempty"` // counterparties over limit
	Failures           []ExposureError      `json:"failures"`
	ProcessedExposures int                  `json:"processed_exposures"`
	CalculatedAt       time.Time            `json:"calculated_at"`
}
