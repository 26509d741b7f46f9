package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "optionlab/internal/errors"
	"optionlab/pkg/utils"
)

type fakeSource struct {
	calls int32
	rate  float64
	err   error
}

func (f *fakeSource) Fetch(ctx context.Context) (Quote, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return Quote{}, f.err
	}
	return NewQuote(f.rate, "FRED API", time.Time{}), nil
}

type memoryCache struct {
	quote *Quote
	saves int
}

func (m *memoryCache) SaveRate(ctx context.Context, q Quote) error {
	m.quote = &q
	m.saves++
	return nil
}

func (m *memoryCache) LatestRate(ctx context.Context) (Quote, error) {
	if m.quote == nil {
		return Quote{}, apperrors.ErrNotFound
	}
	return *m.quote, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestProviderCachesWithinTTL(t *testing.T) {
	src := &fakeSource{rate: 0.0431}
	clk := &clock{t: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)}
	p := NewProvider(src, WithClock(clk.now), WithTTL(time.Hour))

	first := p.Rate(context.Background())
	assert.Equal(t, 0.0431, first.Rate)
	assert.InDelta(t, 4.31, first.RatePercent, 1e-9)
	assert.Equal(t, "FRED API", first.Source)

	clk.t = clk.t.Add(30 * time.Minute)
	second := p.Rate(context.Background())
	assert.Equal(t, "Cached (FRED API)", second.Source)
	assert.EqualValues(t, 1, atomic.LoadInt32(&src.calls))

	clk.t = clk.t.Add(31 * time.Minute)
	p.Rate(context.Background())
	assert.EqualValues(t, 2, atomic.LoadInt32(&src.calls))
}

func TestProviderServesStaleOnFailure(t *testing.T) {
	src := &fakeSource{rate: 0.05}
	clk := &clock{t: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)}
	p := NewProvider(src, WithClock(clk.now))

	p.Rate(context.Background())

	src.err = errors.New("upstream down")
	clk.t = clk.t.Add(2 * time.Hour)
	q := p.Rate(context.Background())

	assert.Equal(t, 0.05, q.Rate)
	assert.Equal(t, "Cached (stale)", q.Source)
}

func TestProviderFallsBackToDefault(t *testing.T) {
	p := NewProvider(&fakeSource{err: errors.New("down")}, WithFallback(0.04))

	q := p.Rate(context.Background())
	assert.Equal(t, 0.04, q.Rate)
	assert.Equal(t, "Default fallback", q.Source)
}

func TestProviderNilSource(t *testing.T) {
	q := NewProvider(nil).Rate(context.Background())
	assert.Equal(t, DefaultFallback, q.Rate)
}

func TestProviderRejectsImplausibleRate(t *testing.T) {
	p := NewProvider(&fakeSource{rate: 4.5})
	assert.Equal(t, DefaultFallback, p.Rate(context.Background()).Rate)
}

func TestProviderAcceptsZeroAndNegativeRates(t *testing.T) {
	for _, rate := range []float64{0, -0.005} {
		q := NewProvider(&fakeSource{rate: rate}).Rate(context.Background())
		assert.Equal(t, rate, q.Rate)
		assert.Equal(t, "FRED API", q.Source)
	}
	assert.Equal(t, DefaultFallback, NewProvider(&fakeSource{rate: -1.5}).Rate(context.Background()).Rate)
}

func TestProviderUsesPersistentCache(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)}
	cache := &memoryCache{}

	first := NewProvider(&fakeSource{rate: 0.042}, WithCache(cache), WithClock(clk.now))
	first.Rate(context.Background())
	require.Equal(t, 1, cache.saves)

	// a second process reads the persisted quote without calling upstream
	src := &fakeSource{rate: 0.099}
	second := NewProvider(src, WithCache(cache), WithClock(clk.now))
	q := second.Rate(context.Background())

	assert.Equal(t, 0.042, q.Rate)
	assert.EqualValues(t, 0, atomic.LoadInt32(&src.calls))
}

func TestProviderRefreshBypassesCache(t *testing.T) {
	src := &fakeSource{rate: 0.03}
	p := NewProvider(src)

	p.Rate(context.Background())
	src.rate = 0.035
	q := p.Refresh(context.Background())

	assert.Equal(t, 0.035, q.Rate)
	assert.EqualValues(t, 2, atomic.LoadInt32(&src.calls))
}

func TestHTTPSourceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RatePath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","rate":0.0425,"rate_percent":4.25,"source":"FRED API (DGS3MO)"}`))
	}))
	defer srv.Close()

	q, err := NewHTTPSource(srv.URL + "/").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0425, q.Rate)
	assert.Equal(t, "FRED API (DGS3MO)", q.Source)
}

func TestHTTPSourceRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status":"success","rate":0.04}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	src.Retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	q, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.04, q.Rate)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestHTTPSourceErrorPayloadIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"status":"error","error":"FRED key missing"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRateUnavailable)
	assert.Contains(t, err.Error(), "FRED key missing")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestHTTPSourceZeroRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","rate":0,"rate_percent":0,"source":"ZIRP"}`))
	}))
	defer srv.Close()

	q, err := NewHTTPSource(srv.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, q.Rate)
	assert.Equal(t, "ZIRP", q.Source)
}

func TestHTTPSourceMissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL).Fetch(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrRateUnavailable)
}
