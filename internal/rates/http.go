package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"optionlab/internal/errors"
	"optionlab/pkg/utils"
)

// RatePath is the endpoint serving the current risk-free rate.
const RatePath = "/api/market/risk-free-rate"

// HTTPSource fetches the rate from a JSON endpoint of the form
// {"status":"success","rate":0.0431,"rate_percent":4.31,"source":"FRED API"}.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
	Retry   utils.RetryConfig
}

// NewHTTPSource creates a source for the service at baseURL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
		Retry:   utils.DefaultRetryConfig(),
	}
}

type rateResponse struct {
	Status      string   `json:"status"`
	Rate        *float64 `json:"rate"`
	RatePercent float64  `json:"rate_percent"`
	Source      string   `json:"source"`
	Error       string   `json:"error"`
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Fetch requests the rate, retrying transient failures.
func (s *HTTPSource) Fetch(ctx context.Context) (Quote, error) {
	cfg := s.Retry
	cfg.Retryable = func(err error) bool {
		var p permanentError
		return !errors.As(err, &p)
	}
	return utils.RetryWithResult(ctx, cfg, s.fetchOnce)
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+RatePath, nil)
	if err != nil {
		return Quote{}, permanentError{err}
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Quote{}, errors.NewDataError("rates", "", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Quote{}, errors.NewDataError("rates", "", "reading response", err)
	}
	if resp.StatusCode >= 500 {
		return Quote{}, errors.NewDataError("rates", "", fmt.Sprintf("HTTP %d", resp.StatusCode), errors.ErrRateUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, permanentError{errors.NewDataError("rates", "", fmt.Sprintf("HTTP %d", resp.StatusCode), errors.ErrRateUnavailable)}
	}

	var payload rateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quote{}, permanentError{errors.NewDataError("rates", "", "decoding response", err)}
	}
	if payload.Status != "success" || payload.Rate == nil {
		msg := payload.Error
		if msg == "" {
			msg = "invalid response"
		}
		return Quote{}, permanentError{errors.NewDataError("rates", "", msg, errors.ErrRateUnavailable)}
	}

	source := payload.Source
	if source == "" {
		source = "FRED API"
	}
	return NewQuote(*payload.Rate, source, time.Time{}), nil
}
