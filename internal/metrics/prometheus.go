// Package metrics exposes prometheus instrumentation for acquisition, polling and search.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Acquisition metrics
	ChainFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionlab_chain_fetches_total",
			Help: "Total number of per-expiration option chain fetches",
		},
		[]string{"status"}, // status: success|error
	)

	ChainFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionlab_chain_fetch_duration_seconds",
			Help:    "Option chain fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	ContractsCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "optionlab_contracts_collected_total",
			Help: "Total number of candidate contracts collected",
		},
	)

	// Poll metrics
	PollRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionlab_poll_requests_total",
			Help: "Total number of finished poll requests",
		},
		[]string{"outcome"}, // outcome: completed|error|cancelled|timeout
	)

	// Search metrics
	Searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionlab_searches_total",
			Help: "Total number of option searches",
		},
		[]string{"variant", "outcome"}, // outcome: match|partial|<failure code>
	)

	SearchCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optionlab_search_candidates",
			Help:    "Number of candidates scored per search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		},
		[]string{"variant"},
	)

	// Rate metrics
	RateLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optionlab_rate_lookups_total",
			Help: "Total number of risk-free rate lookups by serving source",
		},
		[]string{"source"}, // source: fresh|cached|stale|fallback
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ChainFetches)
		prometheus.MustRegister(ChainFetchDuration)
		prometheus.MustRegister(ContractsCollected)
		prometheus.MustRegister(PollRequests)
		prometheus.MustRegister(Searches)
		prometheus.MustRegister(SearchCandidates)
		prometheus.MustRegister(RateLookups)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordChainFetch records one per-expiration fetch
func RecordChainFetch(duration time.Duration, contracts int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ChainFetches.WithLabelValues(status).Inc()
	ChainFetchDuration.WithLabelValues(status).Observe(duration.Seconds())
	if contracts > 0 {
		ContractsCollected.Add(float64(contracts))
	}
}

// RecordPoll records the outcome of a finished poll request
func RecordPoll(outcome string) {
	PollRequests.WithLabelValues(outcome).Inc()
}

// RecordSearch records a search outcome and how many candidates were scored
func RecordSearch(variant, outcome string, scored int) {
	Searches.WithLabelValues(variant, outcome).Inc()
	SearchCandidates.WithLabelValues(variant).Observe(float64(scored))
}

// RecordRateLookup records which tier served a rate lookup
func RecordRateLookup(source string) {
	RateLookups.WithLabelValues(source).Inc()
}
