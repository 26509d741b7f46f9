package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"optionlab/internal/errors"
	"optionlab/internal/logging"
	"optionlab/internal/metrics"
	"optionlab/internal/models"
)

// Poll defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// Poller starts poll requests against result slots. Starting a request cancels the
// previous one still outstanding on the same Poller.
type Poller struct {
	Interval time.Duration
	// Timeout bounds each request; zero disables it.
	Timeout time.Duration
	Logger  zerolog.Logger

	mu      sync.Mutex
	current *PollRequest
}

// NewPoller creates a poller with the given interval and timeout.
func NewPoller(interval, timeout time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{Interval: interval, Timeout: timeout, Logger: logger}
}

// PollRequest is one outstanding wait for a collection result.
type PollRequest struct {
	ID  string
	Key string

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
	last      StatusRecord
	contracts []models.Contract
	err       error
}

// Start begins polling slot for key in a new goroutine and returns the request.
func (p *Poller) Start(ctx context.Context, slot ResultSlot, key string) *PollRequest {
	p.mu.Lock()
	if p.current != nil {
		p.current.Cancel()
	}

	var cancel context.CancelFunc
	if p.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	req := &PollRequest{
		ID:     uuid.New().String(),
		Key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.current = req
	p.mu.Unlock()

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	go req.run(ctx, slot, interval, logging.WithRequestID(p.Logger, req.ID))
	return req
}

// Cancel stops the request. A cancelled request never delivers contracts.
func (r *PollRequest) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
	r.cancel()
}

// Done is closed once the request has finished.
func (r *PollRequest) Done() <-chan struct{} {
	return r.done
}

// Status returns the last record seen.
func (r *PollRequest) Status() StatusRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Wait blocks until the request finishes or ctx is done.
func (r *PollRequest) Wait(ctx context.Context) ([]models.Contract, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.contracts, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *PollRequest) run(ctx context.Context, slot ResultSlot, interval time.Duration, logger zerolog.Logger) {
	defer close(r.done)
	defer r.cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if r.check(ctx, slot, logger) {
			return
		}
		select {
		case <-ctx.Done():
			r.finish(nil, ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// check loads the slot once and reports whether the request finished.
func (r *PollRequest) check(ctx context.Context, slot ResultSlot, logger zerolog.Logger) bool {
	rec, err := slot.Load(ctx, r.Key)
	if err != nil {
		if ctx.Err() != nil {
			r.finish(nil, ctx.Err())
			return true
		}
		if !errors.Is(err, errors.ErrNotFound) {
			logger.Warn().Err(err).Str("key", r.Key).Msg("Failed to read collection status")
		}
		return false
	}

	r.mu.Lock()
	changed := rec.Status != r.last.Status || rec.Progress != r.last.Progress
	r.last = rec
	r.mu.Unlock()
	if changed {
		logging.LogPoll(logger, r.ID, string(rec.Status), rec.Progress)
	}

	switch rec.Status {
	case StatusCompleted:
		r.finish(rec.Contracts, nil)
		return true
	case StatusError:
		r.finish(nil, errors.Wrap(errors.ErrCollectionFailed, rec.Error))
		return true
	default:
		return false
	}
}

func (r *PollRequest) finish(contracts []models.Contract, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.cancelled:
		contracts, err = nil, errors.ErrPollCancelled
	case errors.Is(err, context.DeadlineExceeded):
		err = errors.Wrap(errors.ErrTimeout, "collection did not finish in time")
	case errors.Is(err, context.Canceled):
		err = errors.ErrPollCancelled
	}
	if contracts == nil && err == nil {
		contracts = []models.Contract{}
	}
	r.contracts, r.err = contracts, err
	metrics.RecordPoll(pollOutcome(err))
}

func pollOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, errors.ErrPollCancelled):
		return "cancelled"
	case errors.Is(err, errors.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
