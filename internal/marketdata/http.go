package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"optionlab/internal/errors"
	"optionlab/internal/models"
	"optionlab/internal/resilience"
)

// HTTPFetcher reads chains from a JSON market-data service exposing
// /api/polygon/ticker/{ticker}/expirations and /api/polygon/ticker/{ticker}/options.
// Requests are never retried; the collector skips a failed date instead. After repeated
// failures the breaker rejects requests outright until the service recovers.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
	Breaker *resilience.Breaker
}

// NewHTTPFetcher creates a fetcher for the service at baseURL.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
		Breaker: resilience.NewBreaker("chain-service", resilience.DefaultBreakerConfig(), zerolog.Nop()),
	}
}

type expirationsResponse struct {
	Status string   `json:"status"`
	Dates  []string `json:"dates"`
	Error  string   `json:"error"`
}

type chainResponse struct {
	Status  string            `json:"status"`
	Options []models.Contract `json:"options"`
	Error   string            `json:"error"`
}

// Expirations lists the expiration dates of ticker.
func (f *HTTPFetcher) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	var resp expirationsResponse
	if err := f.get(ctx, ticker, "/expirations", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, errors.NewDataError("http", ticker, "expirations: "+resp.Error, errors.ErrCollectionFailed)
	}

	dates := make([]time.Time, 0, len(resp.Dates))
	for _, s := range resp.Dates {
		d, err := time.Parse(models.DateLayout, s)
		if err != nil {
			return nil, errors.NewDataError("http", ticker, "invalid expiration "+s, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Chain returns the contracts of ticker expiring on expiration.
func (f *HTTPFetcher) Chain(ctx context.Context, ticker string, expiration time.Time) ([]models.Contract, error) {
	q := url.Values{"expiration_date": {expiration.Format(models.DateLayout)}}
	var resp chainResponse
	if err := f.get(ctx, ticker, "/options", q, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, errors.NewDataError("http", ticker, "options: "+resp.Error, errors.ErrCollectionFailed)
	}
	return resp.Options, nil
}

func (f *HTTPFetcher) get(ctx context.Context, ticker, suffix string, query url.Values, out interface{}) error {
	if f.Breaker == nil {
		return f.do(ctx, ticker, suffix, query, out)
	}
	return f.Breaker.Do(ctx, func(ctx context.Context) error {
		return f.do(ctx, ticker, suffix, query, out)
	})
}

func (f *HTTPFetcher) do(ctx context.Context, ticker, suffix string, query url.Values, out interface{}) error {
	u := f.BaseURL + "/api/polygon/ticker/" + url.PathEscape(strings.ToUpper(ticker)) + suffix
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return errors.NewDataError("http", ticker, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return errors.NewDataError("http", ticker, "reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.NewDataError("http", ticker, fmt.Sprintf("HTTP %d", resp.StatusCode), errors.ErrCollectionFailed)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewDataError("http", ticker, "decoding response", err)
	}
	return nil
}
