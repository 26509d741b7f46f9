// Package resilience guards calls to upstream market-data services with a circuit breaker.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optionlab/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // calls pass through
	CircuitOpen     CircuitState = "OPEN"      // calls are rejected
	CircuitHalfOpen CircuitState = "HALF_OPEN" // probing whether the upstream recovered
)

// ErrCircuitOpen is returned while the circuit rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used for chain services.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern. Cancelled contexts are not counted
// as upstream failures.
type Breaker struct {
	name   string
	config BreakerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	stats     BreakerStats
}

// BreakerStats holds call counters.
type BreakerStats struct {
	Name      string       `json:"name"`
	State     CircuitState `json:"state"`
	Requests  int64        `json:"requests"`
	Failures  int64        `json:"failures"`
	Rejected  int64        `json:"rejected"`
	LastError string       `json:"lastError,omitempty"`
}

// NewBreaker creates a closed breaker. Non-positive thresholds fall back to the defaults.
func NewBreaker(name string, config BreakerConfig, logger zerolog.Logger) *Breaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	return &Breaker{
		name:   name,
		config: config,
		logger: logger,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.recordSuccess()
	case ctx.Err() != nil:
		// caller gave up; says nothing about the upstream
	default:
		b.recordFailure(err)
	}
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Requests++
	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.stats.Rejected++
			return errors.Wrapf(ErrCircuitOpen, "%s", b.name)
		}
		b.transitionTo(CircuitHalfOpen)
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(CircuitClosed)
		}
	case CircuitClosed:
		b.failures = 0
	}
}

func (b *Breaker) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Failures++
	b.stats.LastError = err.Error()

	switch b.state {
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.transitionTo(CircuitOpen)
	}
}

func (b *Breaker) transitionTo(state CircuitState) {
	if state == CircuitOpen {
		b.openedAt = b.now()
	}
	b.logger.Warn().
		Str("breaker", b.name).
		Str("from", string(b.state)).
		Str("to", string(state)).
		Msg("Circuit state changed")
	b.state = state
	b.failures = 0
	b.successes = 0
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Name = b.name
	s.State = b.state
	return s
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.successes = 0
}
