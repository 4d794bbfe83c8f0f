// Package portfolio computes concentration metrics over classified
// exposures: per-category breakdowns (share of total) and the
// Herfindahl-Hirschman Index (HHI).
//
// HHI = Σ share_i² over the categories of a breakdown, in [0, 1].
// A single-category portfolio scores 1.0000; N equal categories score 1/N.
//
// All values use shopspring/decimal — never float64 for money.
package portfolio

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

// ErrNegativeAmount is returned when a category amount is negative.
var ErrNegativeAmount = errors.New("portfolio: category amount must not be negative")

// ShareScale is the number of decimal places for shares and HHI values.
const ShareScale int32 = 4

// ConcentrationLevel buckets an HHI value.
type ConcentrationLevel string

const (
	ConcentrationLow      ConcentrationLevel = "LOW"
	ConcentrationModerate ConcentrationLevel = "MODERATE"
	ConcentrationHigh     ConcentrationLevel = "HIGH"
)

// Fixed HHI thresholds: < 0.15 LOW, [0.15, 0.25) MODERATE, ≥ 0.25 HIGH.
var (
	thresholdModerate = decimal.NewFromFloat(0.15)
	thresholdHigh     = decimal.NewFromFloat(0.25)
)

// Share is one category's slice of the portfolio.
type Share struct {
	Category string
	Amount   decimal.Decimal
	Fraction decimal.Decimal // amount / total, 4 dp, in [0, 1]
	Count    int
}

// Breakdown partitions the portfolio total across categories.
// Empty marks a zero-total portfolio: no shares, HHI 0, level LOW.
type Breakdown struct {
	Shares []Share
	Total  decimal.Decimal
	Empty  bool
}

// categoryAmount is the aggregation bucket fed into NewBreakdown.
type categoryAmount struct {
	amount decimal.Decimal
	count  int
}

// NewBreakdown builds a breakdown from per-category amounts.
// Categories are sorted for deterministic output. A zero or empty total
// yields an explicit Empty breakdown rather than a division failure.
func NewBreakdown(amounts map[string]decimal.Decimal, counts map[string]int) (Breakdown, error) {
	total := decimal.Zero
	for _, amt := range amounts {
		if amt.IsNegative() {
			return Breakdown{}, ErrNegativeAmount
		}
		total = total.Add(amt)
	}

	if len(amounts) == 0 || total.IsZero() {
		return Breakdown{Total: decimal.Zero, Empty: true}, nil
	}

	categories := make([]string, 0, len(amounts))
	for cat := range amounts {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	shares := make([]Share, 0, len(categories))
	for _, cat := range categories {
		amt := amounts[cat]
		shares = append(shares, Share{
			Category: cat,
			Amount:   amt,
			Fraction: amt.Div(total).Round(ShareScale),
			Count:    counts[cat],
		})
	}

	return Breakdown{Shares: shares, Total: total}, nil
}

// Share returns the share for a category, or a zero share if absent.
func (b Breakdown) Share(category string) Share {
	for _, s := range b.Shares {
		if s.Category == category {
			return s
		}
	}
	return Share{Category: category, Amount: decimal.Zero, Fraction: decimal.Zero}
}

// FractionMap returns category → fraction as strings, for serialization
// into the result artifact.
func (b Breakdown) FractionMap() map[string]string {
	m := make(map[string]string, len(b.Shares))
	for _, s := range b.Shares {
		m[s.Category] = s.Fraction.String()
	}
	return m
}

// HHI is a computed concentration index with its derived level.
type HHI struct {
	Value decimal.Decimal
	Level ConcentrationLevel
}

// CalculateHHI computes Σ share² over the breakdown at 4 decimals.
// An empty breakdown scores 0 / LOW.
func CalculateHHI(b Breakdown) HHI {
	if b.Empty {
		return HHI{Value: decimal.Zero.Round(ShareScale), Level: ConcentrationLow}
	}

	sum := decimal.Zero
	for _, s := range b.Shares {
		// Square the exact ratio, not the rounded fraction, so N equal
		// categories land exactly on 1/N.
		ratio := s.Amount.Div(b.Total)
		sum = sum.Add(ratio.Mul(ratio))
	}

	value := sum.Round(ShareScale)
	return HHI{Value: value, Level: LevelFor(value)}
}

// LevelFor derives the concentration level from an HHI value via the
// fixed thresholds.
func LevelFor(hhi decimal.Decimal) ConcentrationLevel {
	switch {
	case hhi.LessThan(thresholdModerate):
		return ConcentrationLow
	case hhi.LessThan(thresholdHigh):
		return ConcentrationModerate
	default:
		return ConcentrationHigh
	}
}

// Aggregator groups classified exposures along one dimension at a time.
// It is stateless; exposures are passed as arguments, not stored.
type Aggregator struct{}

// ByRegion aggregates net EUR exposure per geographic region.
func (Aggregator) ByRegion(exposures []model.ClassifiedExposure) (Breakdown, error) {
	amounts := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, e := range exposures {
		key := string(e.Region)
		amounts[key] = amounts[key].Add(e.NetEUR)
		counts[key]++
	}
	return NewBreakdown(amounts, counts)
}

// BySector aggregates net EUR exposure per economic sector.
func (Aggregator) BySector(exposures []model.ClassifiedExposure) (Breakdown, error) {
	amounts := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, e := range exposures {
		key := string(e.Sector)
		amounts[key] = amounts[key].Add(e.NetEUR)
		counts[key]++
	}
	return NewBreakdown(amounts, counts)
}
