package store

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultChainMaxAge is how long a collected option chain stays fresh.
const DefaultChainMaxAge = 15 * time.Minute

// DataFreshness represents the freshness of a synced data set.
type DataFreshness struct {
	Key         string
	LastUpdated time.Time
	IsFresh     bool
	Age         time.Duration
}

// FreshnessTracker records when data sets were last refreshed and judges their age.
type FreshnessTracker struct {
	store  DataStore
	maxAge time.Duration
	now    func() time.Time
}

// NewFreshnessTracker creates a tracker. A non-positive maxAge uses DefaultChainMaxAge.
func NewFreshnessTracker(store DataStore, maxAge time.Duration) *FreshnessTracker {
	if maxAge <= 0 {
		maxAge = DefaultChainMaxAge
	}
	return &FreshnessTracker{store: store, maxAge: maxAge, now: time.Now}
}

// Freshness returns the freshness status of key.
func (ft *FreshnessTracker) Freshness(key string) *DataFreshness {
	lastSync := ft.store.GetLastSync(key)
	if lastSync.IsZero() {
		return &DataFreshness{Key: key}
	}
	age := ft.now().Sub(lastSync)
	return &DataFreshness{
		Key:         key,
		LastUpdated: lastSync,
		IsFresh:     age < ft.maxAge,
		Age:         age,
	}
}

// IsStale reports whether key was never synced or is older than the max age.
func (ft *FreshnessTracker) IsStale(key string) bool {
	return !ft.Freshness(key).IsFresh
}

// MarkSynced records key as refreshed now.
func (ft *FreshnessTracker) MarkSynced(key string) error {
	if err := ft.store.SetLastSync(key, ft.now()); err != nil {
		return fmt.Errorf("failed to mark %s as synced: %w", key, err)
	}
	return nil
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastUpdated.IsZero() {
		return "Never synced"
	}

	ageStr := humanize.RelTime(freshness.LastUpdated, freshness.LastUpdated.Add(freshness.Age), "ago", "from now")
	if freshness.Age < time.Minute {
		ageStr = "just now"
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale data - updated %s", ageStr)
}
