// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"optionlab/internal/models"
	"optionlab/internal/rates"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Strategies
	SaveStrategy(ctx context.Context, s *models.Strategy) error
	GetStrategy(ctx context.Context, id string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, filter StrategyFilter) ([]models.Strategy, error)
	DeleteStrategy(ctx context.Context, id string) error

	// Risk-free rate cache
	rates.Cache

	// Search history
	LogSearchRun(ctx context.Context, run *models.SearchRun) error
	GetSearchRuns(ctx context.Context, filter SearchRunFilter) ([]models.SearchRun, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// StrategyFilter represents filters for listing strategies.
type StrategyFilter struct {
	Ticker string
	Status models.StrategyStatus
	Limit  int
}

// SearchRunFilter represents filters for querying search history.
type SearchRunFilter struct {
	Ticker    string
	Variant   string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// ChainSyncKey is the sync key under which the last chain collection for ticker is recorded.
func ChainSyncKey(ticker string) string {
	return "chain:" + ticker
}
