// Package marketdata acquires candidate option contracts: a throttled sequential
// per-expiration fetch and a cancellable poll against a shared result slot.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/metrics"
	"optionlab/internal/models"
)

// ChainFetcher retrieves option chains from a market-data source.
type ChainFetcher interface {
	Expirations(ctx context.Context, ticker string) ([]time.Time, error)
	Chain(ctx context.Context, ticker string, expiration time.Time) ([]models.Contract, error)
}

// Collection is the result of a multi-date fetch.
type Collection struct {
	Ticker      string            `json:"ticker"`
	Dates       []time.Time       `json:"dates"`
	Contracts   []models.Contract `json:"contracts"`
	FailedDates []time.Time       `json:"failedDates,omitempty"`
	Partial     bool              `json:"partial"`
}

// Collector fetches chains one expiration at a time.
type Collector struct {
	fetcher ChainFetcher
	limiter *rate.Limiter
	logger  zerolog.Logger
	slot    ResultSlot
	slotKey string
	now     func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithRequestsPerMinute throttles chain requests. Zero or negative disables throttling.
func WithRequestsPerMinute(n int) CollectorOption {
	return func(c *Collector) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(logger zerolog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = logger }
}

// WithProgress publishes progress records to slot under key while collecting.
func WithProgress(slot ResultSlot, key string) CollectorOption {
	return func(c *Collector) {
		c.slot = slot
		c.slotKey = key
	}
}

// NewCollector creates a collector over fetcher.
func NewCollector(fetcher ChainFetcher, opts ...CollectorOption) *Collector {
	c := &Collector{
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Expirations lists the expirations available for ticker, sorted ascending.
func (c *Collector) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	dates, err := c.fetcher.Expirations(ctx, ticker)
	if err != nil {
		return nil, errors.NewDataError("chain", ticker, "failed to list expirations", err)
	}
	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted, nil
}

// Collect fetches the chain of every date in order, waiting on the throttle between
// requests. A failing date is logged and skipped; it is reported in FailedDates.
// Contracts without an expiration inherit the date they were fetched for.
// Only context cancellation aborts the run.
func (c *Collector) Collect(ctx context.Context, ticker string, dates []time.Time) (*Collection, error) {
	logger := logging.WithTicker(c.logger, ticker)
	out := &Collection{Ticker: ticker, Dates: dates, Contracts: []models.Contract{}}

	for i, date := range dates {
		if err := c.limiter.Wait(ctx); err != nil {
			c.publishFailure(ctx, out, err)
			return nil, err
		}
		c.publish(ctx, StatusRecord{
			Status:               StatusCollecting,
			Progress:             i * 100 / len(dates),
			CurrentExpiration:    date.Format(models.DateLayout),
			TotalExpirations:     len(dates),
			CollectedExpirations: i,
			TotalOptions:         len(out.Contracts),
		})

		start := time.Now()
		chain, err := c.fetcher.Chain(ctx, ticker, date)
		elapsed := time.Since(start)
		logging.LogFetch(logger, ticker, date, len(chain), elapsed, err)
		metrics.RecordChainFetch(elapsed, len(chain), err)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.publishFailure(ctx, out, ctxErr)
				return nil, ctxErr
			}
			out.FailedDates = append(out.FailedDates, date)
			continue
		}
		for _, contract := range chain {
			if contract.Expiration.IsZero() {
				contract.Expiration = date
			}
			out.Contracts = append(out.Contracts, contract)
		}
	}

	out.Partial = len(out.FailedDates) > 0
	if len(dates) > 0 && len(out.FailedDates) == len(dates) {
		err := errors.NewDataError("chain", ticker, "every expiration failed to load", errors.ErrCollectionFailed)
		c.publishFailure(ctx, out, err)
		return out, err
	}

	c.publish(ctx, StatusRecord{
		Status:               StatusCompleted,
		Progress:             100,
		TotalExpirations:     len(dates),
		CollectedExpirations: len(dates) - len(out.FailedDates),
		TotalOptions:         len(out.Contracts),
		Contracts:            out.Contracts,
	})
	return out, nil
}

func (c *Collector) publishFailure(ctx context.Context, out *Collection, err error) {
	c.publish(context.WithoutCancel(ctx), StatusRecord{
		Status:       StatusError,
		TotalOptions: len(out.Contracts),
		Error:        err.Error(),
	})
}

func (c *Collector) publish(ctx context.Context, rec StatusRecord) {
	if c.slot == nil {
		return
	}
	rec.Timestamp = c.now().UnixMilli()
	if err := c.slot.Store(ctx, c.slotKey, rec); err != nil {
		c.logger.Warn().Err(err).Str("key", c.slotKey).Msg("Failed to publish collection status")
	}
}
