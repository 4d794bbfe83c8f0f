// Package netting applies credit-risk mitigations to gross exposures.
//
// The regulatory invariant: net exposure is the gross amount minus the sum
// of mitigation values, floored at zero. Over-collateralized exposures net
// to exactly zero, never negative. All arithmetic is EUR fixed point at two
// decimals, HALF_UP.
package netting

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

var (
	// ErrNegativeGross is returned when the gross exposure is negative.
	ErrNegativeGross = errors.New("netting: gross exposure must not be negative")

	// ErrNegativeMitigation is returned when a mitigation value is negative.
	ErrNegativeMitigation = errors.New("netting: mitigation value must not be negative")
)

// Net computes the protected exposure for a gross EUR amount and a list of
// EUR-equivalent mitigation values:
//
//	net = max(gross − Σ mitigations, 0)
func Net(exposureID string, grossEUR decimal.Decimal, mitigations []decimal.Decimal) (model.ProtectedExposure, error) {
	if grossEUR.IsNegative() {
		return model.ProtectedExposure{}, ErrNegativeGross
	}

	total := decimal.Zero
	ms := make([]model.Mitigation, 0, len(mitigations))
	for _, v := range mitigations {
		if v.IsNegative() {
			return model.ProtectedExposure{}, ErrNegativeMitigation
		}
		total = total.Add(v)
		ms = append(ms, model.Mitigation{ValueEUR: v.Round(model.EURScale)})
	}

	net := grossEUR.Sub(total)
	if net.IsNegative() {
		net = decimal.Zero
	}

	return model.ProtectedExposure{
		ExposureID:  exposureID,
		GrossEUR:    grossEUR.Round(model.EURScale),
		Mitigations: ms,
		NetEUR:      net.Round(model.EURScale),
	}, nil
}

// WithoutMitigations is the zero-mitigation shortcut: net equals gross.
func WithoutMitigations(exposureID string, grossEUR decimal.Decimal) (model.ProtectedExposure, error) {
	return Net(exposureID, grossEUR, nil)
}
