package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

// HTTPProvider fetches rates from a currencyapi.com-compatible endpoint.
// Each attempt carries its own timeout; transient failures are retried with
// exponential backoff up to Attempts.
type HTTPProvider struct {
	BaseURL  string
	APIKey   string
	Client   *http.Client
	Timeout  time.Duration // per-attempt request timeout
	Attempts int           // total attempts, >= 1
	Backoff  time.Duration // base backoff, doubled per retry
}

// NewHTTPProvider creates a provider with the given endpoint and bounds.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, attempts int, backoff time.Duration) *HTTPProvider {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPProvider{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Client:   &http.Client{},
		Timeout:  timeout,
		Attempts: attempts,
		Backoff:  backoff,
	}
}

// apiResponse mirrors the currencyapi.com payload:
//
//	{"data": {"EUR": {"code": "EUR", "value": 0.92}}}
type apiResponse struct {
	Data map[string]struct {
		Code  string          `json:"code"`
		Value decimal.Decimal `json:"value"`
	} `json:"data"`
}

// GetRate fetches the (from → to) rate for a date. Historical dates use the
// /historical endpoint, the current date uses /latest.
func (p *HTTPProvider) GetRate(ctx context.Context, from, to string, date time.Time) (model.ExchangeRate, error) {
	endpoint := p.buildURL(from, to, date)

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			backoff := p.Backoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				// Caller cancellation, not a provider timeout.
				return model.ExchangeRate{}, fmt.Errorf("rates: retry wait: %w", ctx.Err())
			}
		}

		rate, err := p.fetch(ctx, endpoint, from, to, date)
		if err == nil {
			return rate, nil
		}
		metrics.RateProviderRetries.Inc()
		lastErr = err

		// Missing data and parse failures are not transient; retrying the
		// same payload cannot help.
		if errors.Is(err, ErrRateMissing) || errors.Is(err, ErrParse) {
			return model.ExchangeRate{}, err
		}
	}
	return model.ExchangeRate{}, lastErr
}

func (p *HTTPProvider) fetch(ctx context.Context, endpoint, from, to string, date time.Time) (model.ExchangeRate, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("rates: build request: %w", err)
	}

	resp, err := p.Client.Do(req)
	metrics.RateProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if attemptCtx.Err() != nil {
			return model.ExchangeRate{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return model.ExchangeRate{}, fmt.Errorf("rates: provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ExchangeRate{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.ExchangeRate{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	entry, ok := body.Data[to]
	if !ok || entry.Value.IsZero() {
		return model.ExchangeRate{}, fmt.Errorf("%w: %s on %s", ErrRateMissing, to, date.Format("2006-01-02"))
	}

	return model.ExchangeRate{Rate: entry.Value, From: from, To: to, Date: date}, nil
}

func (p *HTTPProvider) buildURL(from, to string, date time.Time) string {
	q := url.Values{}
	q.Set("apikey", p.APIKey)
	q.Set("base_currency", from)
	q.Set("currencies", to)

	today := time.Now().UTC().Format("2006-01-02")
	day := date.Format("2006-01-02")
	if day == today {
		return p.BaseURL + "/latest?" + q.Encode()
	}
	q.Set("date", day)
	return p.BaseURL + "/historical?" + q.Encode()
}
