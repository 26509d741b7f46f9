package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "optionlab/internal/errors"
	"optionlab/internal/models"
	"optionlab/internal/resilience"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []time.Time
	fail   map[string]bool
	chains map[string][]models.Contract
	block  chan struct{}
}

func (f *fakeFetcher) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	return []time.Time{day(21), day(7), day(14)}, nil
}

func (f *fakeFetcher) Chain(ctx context.Context, ticker string, expiration time.Time) ([]models.Contract, error) {
	f.mu.Lock()
	f.calls = append(f.calls, expiration)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	key := expiration.Format(models.DateLayout)
	if f.fail[key] {
		return nil, apperrors.New("upstream 502")
	}
	return f.chains[key], nil
}

func TestCollectorSkipsFailingDates(t *testing.T) {
	f := &fakeFetcher{
		fail: map[string]bool{"2025-03-14": true},
		chains: map[string][]models.Contract{
			"2025-03-07": {{Strike: 100, Type: models.Call, Ask: 2}},
			"2025-03-21": {{Strike: 105, Type: models.Call, Ask: 1}, {Strike: 95, Type: models.Put, Ask: 1.5}},
		},
	}
	slot := NewMemorySlot()
	c := NewCollector(f, WithProgress(slot, "collection:SPY"))

	out, err := c.Collect(context.Background(), "SPY", []time.Time{day(7), day(14), day(21)})
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(7), day(14), day(21)}, f.calls)
	assert.Len(t, out.Contracts, 3)
	assert.Equal(t, []time.Time{day(14)}, out.FailedDates)
	assert.True(t, out.Partial)
	assert.Equal(t, day(21), out.Contracts[1].Expiration)

	rec, err := slot.Load(context.Background(), "collection:SPY")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.CollectedExpirations)
	assert.Len(t, rec.Contracts, 3)
}

func TestCollectorAllDatesFailing(t *testing.T) {
	f := &fakeFetcher{fail: map[string]bool{"2025-03-07": true}}
	out, err := NewCollector(f).Collect(context.Background(), "SPY", []time.Time{day(7)})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCollectionFailed)
	assert.Equal(t, []time.Time{day(7)}, out.FailedDates)
}

func TestCollectorStopsOnCancel(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := NewCollector(f).Collect(ctx, "SPY", []time.Time{day(7), day(14)})
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestCollectorExpirationsSorted(t *testing.T) {
	dates, err := NewCollector(&fakeFetcher{}).Expirations(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(7), day(14), day(21)}, dates)
}

func TestPollDeliversCompletedResult(t *testing.T) {
	slot := NewMemorySlot()
	p := NewPoller(5*time.Millisecond, time.Second, testLogger())
	req := p.Start(context.Background(), slot, "k")
	require.NotEmpty(t, req.ID)

	require.NoError(t, slot.Store(context.Background(), "k", StatusRecord{Status: StatusCollecting, Progress: 50}))
	require.NoError(t, slot.Store(context.Background(), "k", StatusRecord{
		Status:    StatusCompleted,
		Progress:  100,
		Contracts: []models.Contract{{Strike: 100, Type: models.Put, Bid: 1}},
	}))

	contracts, err := req.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
	assert.Equal(t, StatusCompleted, req.Status().Status)
}

func TestPollSurfacesCollectorError(t *testing.T) {
	slot := NewMemorySlot()
	require.NoError(t, slot.Store(context.Background(), "k", StatusRecord{Status: StatusError, Error: "gateway down"}))

	req := NewPoller(5*time.Millisecond, time.Second, testLogger()).Start(context.Background(), slot, "k")
	_, err := req.Wait(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrCollectionFailed)
	assert.Contains(t, err.Error(), "gateway down")
}

func TestPollCancelNeverDelivers(t *testing.T) {
	slot := NewMemorySlot()
	req := NewPoller(5*time.Millisecond, 0, testLogger()).Start(context.Background(), slot, "k")

	req.Cancel()
	require.NoError(t, slot.Store(context.Background(), "k", StatusRecord{
		Status:    StatusCompleted,
		Contracts: []models.Contract{{Strike: 1}},
	}))

	contracts, err := req.Wait(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPollCancelled)
	assert.Nil(t, contracts)
}

func TestPollTimeout(t *testing.T) {
	req := NewPoller(5*time.Millisecond, 30*time.Millisecond, testLogger()).Start(context.Background(), NewMemorySlot(), "k")

	_, err := req.Wait(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestNewRequestSupersedesPrevious(t *testing.T) {
	slot := NewMemorySlot()
	p := NewPoller(5*time.Millisecond, 0, testLogger())

	first := p.Start(context.Background(), slot, "k")
	second := p.Start(context.Background(), slot, "k")

	<-first.Done()
	_, err := first.Wait(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPollCancelled)

	require.NoError(t, slot.Store(context.Background(), "k", StatusRecord{Status: StatusCompleted}))
	contracts, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, contracts)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestPollParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	req := NewPoller(5*time.Millisecond, 0, testLogger()).Start(ctx, NewMemorySlot(), "k")
	cancel()

	_, err := req.Wait(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPollCancelled)
}

type fakeRedis struct {
	data map[string]string
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func TestRedisSlot(t *testing.T) {
	client := &fakeRedis{data: map[string]string{}}
	slot := NewRedisSlot(client, "optionlab:", time.Minute)
	ctx := context.Background()

	_, err := slot.Load(ctx, "collection:SPY")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	rec := StatusRecord{Status: StatusCollecting, Progress: 40, TotalExpirations: 5, CollectedExpirations: 2}
	require.NoError(t, slot.Store(ctx, "collection:SPY", rec))
	assert.Contains(t, client.data, "optionlab:collection:SPY")

	got, err := slot.Load(ctx, "collection:SPY")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRedisSlotReadsExternalCollector(t *testing.T) {
	payload := `{"status":"completed","progress":100,"totalExpirations":1,"collectedExpirations":1,
		"totalOptions":1,"timestamp":1735725600000,
		"contracts":[{"strike":100,"type":"call","bid":1.1,"ask":1.2,"expirationDate":"2025-03-21"}]}`
	client := &fakeRedis{data: map[string]string{"collection:SPY": payload}}

	req := NewPoller(5*time.Millisecond, time.Second, testLogger()).Start(context.Background(), NewRedisSlot(client, "", 0), "collection:SPY")
	contracts, err := req.Wait(context.Background())

	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, models.Call, contracts[0].Type)
	assert.Equal(t, day(21), contracts[0].Expiration)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/polygon/ticker/SPY/expirations":
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "dates": []string{"2025-03-07", "2025-03-14"}})
		case "/api/polygon/ticker/SPY/options":
			assert.Equal(t, "2025-03-07", r.URL.Query().Get("expiration_date"))
			w.Write([]byte(`{"status":"success","options":[{"strike":500,"type":"put","bid":2,"ask":2.2,"open_interest":900}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	dates, err := f.Expirations(context.Background(), "spy")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(7), day(14)}, dates)

	chain, err := f.Chain(context.Background(), "SPY", day(7))
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, int64(900), chain[0].OpenInterest)

	_, err = f.Chain(context.Background(), "QQQ", day(7))
	assert.ErrorIs(t, err, apperrors.ErrCollectionFailed)
}

func TestSnapshotFetcher(t *testing.T) {
	f := NewSnapshotFetcher(ChainSnapshot{
		Ticker: "SPY",
		Contracts: []models.Contract{
			{Strike: 100, Type: models.Call, Expiration: day(14)},
			{Strike: 100, Type: models.Put, Expiration: day(7)},
			{Strike: 105, Type: models.Call, Expiration: day(14)},
		},
	})

	dates, err := f.Expirations(context.Background(), "spy")
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(7), day(14)}, dates)

	chain, err := f.Chain(context.Background(), "SPY", day(14))
	require.NoError(t, err)
	assert.Len(t, chain, 2)

	_, err = f.Chain(context.Background(), "SPY", day(21))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.Expirations(context.Background(), "QQQ")
	assert.Error(t, err)
}

func TestHTTPFetcherBreakerStopsHammering(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := f.Chain(context.Background(), "SPY", day(7))
		assert.ErrorIs(t, err, apperrors.ErrCollectionFailed)
	}

	_, err := f.Chain(context.Background(), "SPY", day(14))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	mu.Lock()
	assert.Equal(t, 3, hits)
	mu.Unlock()
	assert.Equal(t, resilience.CircuitOpen, f.Breaker.State())
}
