// Package rates resolves EUR exchange rates from an external provider, with
// a TTL cache in front. Failure modes are distinct and explicit — a missing
// or unparseable rate is never silently replaced by an identity rate.
package rates

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

var (
	// ErrTimeout is returned when a provider call exceeds its per-attempt
	// deadline (after all retries).
	ErrTimeout = errors.New("rates: provider request timed out")

	// ErrStatus is returned when the provider answers with a non-success
	// HTTP status.
	ErrStatus = errors.New("rates: provider returned non-success status")

	// ErrRateMissing is returned when the provider response parses but does
	// not contain the requested currency.
	ErrRateMissing = errors.New("rates: rate missing from provider response")

	// ErrParse is returned when the provider response cannot be decoded.
	ErrParse = errors.New("rates: unparseable provider response")
)

// Provider resolves the exchange rate between two currencies for a date.
// Implementations may be a live API, a static table, or a test double.
type Provider interface {
	GetRate(ctx context.Context, from, to string, date time.Time) (model.ExchangeRate, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, from, to string, date time.Time) (model.ExchangeRate, error)

func (f ProviderFunc) GetRate(ctx context.Context, from, to string, date time.Time) (model.ExchangeRate, error) {
	return f(ctx, from, to, date)
}

// ToEUR converts an amount into EUR using the given rate source, rounding
// to the EUR reporting scale (2 decimals, HALF_UP).
func ToEUR(ctx context.Context, src Provider, amount decimal.Decimal, currency string, date time.Time) (decimal.Decimal, error) {
	if currency == model.ReportingCurrency {
		return amount.Round(model.EURScale), nil
	}
	rate, err := src.GetRate(ctx, currency, model.ReportingCurrency, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rate.Rate).Round(model.EURScale), nil
}

// cacheKey is the canonical cache/coalescing key for a rate lookup.
func cacheKey(from, to string, date time.Time) string {
	return from + ":" + to + ":" + date.Format("2006-01-02")
}
