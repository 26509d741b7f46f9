// Package rates supplies the risk-free rate used by the pricing models.
package rates

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optionlab/internal/errors"
	"optionlab/internal/metrics"
)

// Defaults used when no configuration is supplied.
const (
	DefaultTTL      = time.Hour
	DefaultFallback = 0.045
)

// Quote is an annual risk-free rate observation.
type Quote struct {
	Rate        float64   `json:"rate"`
	RatePercent float64   `json:"ratePercent"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// NewQuote builds a quote from a decimal rate.
func NewQuote(rate float64, source string, at time.Time) Quote {
	return Quote{Rate: rate, RatePercent: rate * 100, Source: source, FetchedAt: at}
}

// Source fetches the current rate from an upstream service.
type Source interface {
	Fetch(ctx context.Context) (Quote, error)
}

// Cache persists the last fetched quote across processes.
type Cache interface {
	SaveRate(ctx context.Context, q Quote) error
	LatestRate(ctx context.Context) (Quote, error)
}

// Provider returns the risk-free rate, caching upstream answers for TTL.
// When the upstream fails it serves a stale cached quote, then the fixed fallback.
type Provider struct {
	source   Source
	cache    Cache
	ttl      time.Duration
	fallback float64
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cached *Quote
}

// Option configures a Provider.
type Option func(*Provider)

// WithCache attaches a persistent cache.
func WithCache(c Cache) Option {
	return func(p *Provider) { p.cache = c }
}

// WithTTL sets the cache time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithFallback sets the rate used when nothing else is available.
func WithFallback(rate float64) Option {
	return func(p *Provider) { p.fallback = rate }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider creates a rate provider over source. A nil source always yields the fallback.
func NewProvider(source Source, opts ...Option) *Provider {
	p := &Provider{
		source:   source,
		ttl:      DefaultTTL,
		fallback: DefaultFallback,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rate returns a fresh cached quote, or fetches a new one.
func (p *Provider) Rate(ctx context.Context) Quote {
	p.mu.Lock()
	defer p.mu.Unlock()

	if q, ok := p.fresh(ctx); ok {
		q.Source = "Cached (" + q.Source + ")"
		metrics.RecordRateLookup("cached")
		return q
	}
	return p.fetchLocked(ctx)
}

// Refresh bypasses the cache and fetches from the source.
func (p *Provider) Refresh(ctx context.Context) Quote {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.fetchLocked(ctx)
}

// Fallback returns the fixed fallback quote.
func (p *Provider) Fallback() Quote {
	return NewQuote(p.fallback, "Default fallback", p.now())
}

func (p *Provider) loadPersisted(ctx context.Context) {
	if p.cached != nil || p.cache == nil {
		return
	}
	q, err := p.cache.LatestRate(ctx)
	if err == nil {
		p.cached = &q
	} else if !errors.Is(err, errors.ErrNotFound) {
		p.logger.Warn().Err(err).Msg("Failed to read cached rate")
	}
}

func (p *Provider) fresh(ctx context.Context) (Quote, bool) {
	p.loadPersisted(ctx)
	if p.cached == nil {
		return Quote{}, false
	}
	if p.now().Sub(p.cached.FetchedAt) >= p.ttl {
		return Quote{}, false
	}
	return *p.cached, true
}

func (p *Provider) fetchLocked(ctx context.Context) Quote {
	if p.source == nil {
		metrics.RecordRateLookup("fallback")
		return p.Fallback()
	}

	q, err := p.source.Fetch(ctx)
	if err == nil && plausible(q.Rate) {
		if q.FetchedAt.IsZero() {
			q.FetchedAt = p.now()
		}
		q.RatePercent = q.Rate * 100
		p.cached = &q
		if p.cache != nil {
			if err := p.cache.SaveRate(ctx, q); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to persist rate")
			}
		}
		p.logger.Debug().Float64("rate", q.Rate).Str("source", q.Source).Msg("Risk-free rate refreshed")
		metrics.RecordRateLookup("fresh")
		return q
	}
	if err == nil {
		err = errors.Wrapf(errors.ErrRateUnavailable, "implausible rate %v", q.Rate)
	}

	p.loadPersisted(ctx)
	if p.cached != nil {
		stale := *p.cached
		stale.Source = "Cached (stale)"
		p.logger.Warn().Err(err).Float64("rate", stale.Rate).Msg("Rate fetch failed, using stale cache")
		metrics.RecordRateLookup("stale")
		return stale
	}

	p.logger.Warn().Err(err).Float64("rate", p.fallback).Msg("Rate fetch failed, using fallback")
	metrics.RecordRateLookup("fallback")
	return p.Fallback()
}

// plausible accepts decimal annual rates in (-1, 1), zero and negative included.
func plausible(rate float64) bool {
	return !math.IsNaN(rate) && rate > -1 && rate < 1
}

// StaticSource always returns the same rate.
type StaticSource struct {
	Rate  float64
	Label string
}

// Fetch returns the configured rate.
func (s StaticSource) Fetch(ctx context.Context) (Quote, error) {
	label := s.Label
	if label == "" {
		label = "Static"
	}
	return NewQuote(s.Rate, label, time.Time{}), nil
}
