package marketdata

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"optionlab/internal/errors"
	"optionlab/internal/models"
)

// ChainSnapshot is a saved option chain: every contract of one underlying.
type ChainSnapshot struct {
	Ticker    string            `json:"ticker"`
	Price     float64           `json:"price,omitempty"`
	Contracts []models.Contract `json:"contracts"`
}

// SnapshotFetcher serves chains from an in-memory snapshot.
type SnapshotFetcher struct {
	snapshot ChainSnapshot
	byDate   map[string][]models.Contract
	dates    []time.Time
}

// NewSnapshotFetcher indexes snap by expiration.
func NewSnapshotFetcher(snap ChainSnapshot) *SnapshotFetcher {
	f := &SnapshotFetcher{snapshot: snap, byDate: make(map[string][]models.Contract)}
	for _, c := range snap.Contracts {
		key := c.Expiration.Format(models.DateLayout)
		if _, ok := f.byDate[key]; !ok {
			f.dates = append(f.dates, c.Expiration)
		}
		f.byDate[key] = append(f.byDate[key], c)
	}
	sort.Slice(f.dates, func(i, j int) bool { return f.dates[i].Before(f.dates[j]) })
	return f
}

// LoadSnapshot reads a ChainSnapshot from a JSON file.
func LoadSnapshot(path string) (*SnapshotFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading chain snapshot %s", path)
	}
	var snap ChainSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "decoding chain snapshot %s", path)
	}
	return NewSnapshotFetcher(snap), nil
}

// Snapshot returns the underlying snapshot.
func (f *SnapshotFetcher) Snapshot() ChainSnapshot {
	return f.snapshot
}

// Expirations returns the distinct expirations in the snapshot.
func (f *SnapshotFetcher) Expirations(ctx context.Context, ticker string) ([]time.Time, error) {
	if err := f.checkTicker(ticker); err != nil {
		return nil, err
	}
	return append([]time.Time(nil), f.dates...), nil
}

// Chain returns the snapshot contracts expiring on expiration.
func (f *SnapshotFetcher) Chain(ctx context.Context, ticker string, expiration time.Time) ([]models.Contract, error) {
	if err := f.checkTicker(ticker); err != nil {
		return nil, err
	}
	chain, ok := f.byDate[expiration.Format(models.DateLayout)]
	if !ok {
		return nil, errors.NewDataError("snapshot", ticker, "no chain for "+expiration.Format(models.DateLayout), errors.ErrNotFound)
	}
	return append([]models.Contract(nil), chain...), nil
}

func (f *SnapshotFetcher) checkTicker(ticker string) error {
	if f.snapshot.Ticker != "" && !strings.EqualFold(f.snapshot.Ticker, ticker) {
		return errors.NewDataError("snapshot", ticker, "snapshot holds "+f.snapshot.Ticker, errors.ErrNotFound)
	}
	return nil
}
