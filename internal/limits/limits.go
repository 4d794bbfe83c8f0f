// Package limits implements large-exposure checks against the bank's risk
// parameters (CRR Art. 395 style): a counterparty whose aggregate net
// exposure exceeds the configured percentage of eligible capital is a
// large exposure, and the count of large exposures is itself capped.
package limits

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
)

// ErrTooManyLargeExposures is returned when the portfolio carries more
// large exposures than the configured maximum.
var ErrTooManyLargeExposures = errors.New("limits: large exposure count exceeds configured maximum")

// Checker flags counterparties breaching the large-exposure limit.
//
// The check is pure: exposures and parameters are passed as arguments, not
// stored. With a zero or unset capital base the check is skipped — there
// is no denominator to measure against.
type Checker struct{}

// LargeExposures returns the counterparties whose aggregate net EUR
// exposure exceeds LimitPercent of eligible capital, sorted by name.
// It returns ErrTooManyLargeExposures when the count breaches
// MaxLargeExposures; the breaching list is still returned for reporting.
func (Checker) LargeExposures(exposures []model.ClassifiedExposure, p params.RiskParameters) ([]string, error) {
	capital := p.CapitalBase.EligibleCapitalEUR
	if !capital.IsPositive() {
		return nil, nil
	}

	// limit = capital × limitPercent / 100
	limit := capital.Mul(p.LargeExposures.LimitPercent).Div(decimal.NewFromInt(100))

	byCounterparty := make(map[string]decimal.Decimal)
	for _, e := range exposures {
		byCounterparty[e.Counterparty] = byCounterparty[e.Counterparty].Add(e.NetEUR)
	}

	var breaching []string
	for counterparty, total := range byCounterparty {
		if total.GreaterThan(limit) {
			breaching = append(breaching, counterparty)
		}
	}
	sort.Strings(breaching)

	if len(breaching) > p.ConcentrationRisk.MaxLargeExposures {
		return breaching, ErrTooManyLargeExposures
	}
	return breaching, nil
}
