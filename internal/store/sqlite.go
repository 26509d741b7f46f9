package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"optionlab/internal/errors"
	"optionlab/internal/models"
	"optionlab/internal/rates"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Saved strategies; legs and positions are JSON documents
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ticker TEXT NOT NULL,
		convention TEXT NOT NULL DEFAULT 'equity',
		current_price REAL NOT NULL DEFAULT 0,
		legs TEXT NOT NULL,
		positions TEXT,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Risk-free rate quotes
	CREATE TABLE IF NOT EXISTS rate_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rate REAL NOT NULL,
		source TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	-- Selection search history
	CREATE TABLE IF NOT EXISTS search_runs (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		variant TEXT NOT NULL,
		target_price REAL NOT NULL,
		code TEXT,
		best_strike REAL,
		best_expiration DATETIME,
		best_pnl REAL,
		candidates INTEGER NOT NULL DEFAULT 0,
		partial INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_strategies_ticker ON strategies(ticker);
	CREATE INDEX IF NOT EXISTS idx_rate_cache_fetched ON rate_cache(fetched_at);
	CREATE INDEX IF NOT EXISTS idx_search_runs_ticker ON search_runs(ticker);
	CREATE INDEX IF NOT EXISTS idx_search_runs_created ON search_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Strategy Methods
// ============================================================================

// SaveStrategy inserts or replaces a strategy. A missing ID is generated and
// timestamps are maintained.
func (s *SQLiteStore) SaveStrategy(ctx context.Context, st *models.Strategy) error {
	if strings.TrimSpace(st.Name) == "" {
		return errors.NewValidationError("name", st.Name, "strategy name is required")
	}
	now := time.Now().UTC()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	if st.Status == "" {
		st.Status = models.StrategyDraft
	}
	if st.Convention == "" {
		st.Convention = models.ConventionEquity
	}

	legs, err := json.Marshal(st.Legs)
	if err != nil {
		return fmt.Errorf("failed to encode legs: %w", err)
	}
	positions, err := json.Marshal(st.Positions)
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO strategies (id, name, ticker, convention, current_price, legs, positions, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, st.ID, st.Name, strings.ToUpper(st.Ticker), string(st.Convention), st.CurrentPrice, string(legs), string(positions), string(st.Status), st.Notes, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return errors.Wrapf(errors.ErrDatabaseError, "failed to save strategy: %v", err)
	}
	st.Ticker = strings.ToUpper(st.Ticker)
	return nil
}

const strategyColumns = "id, name, ticker, convention, current_price, legs, positions, status, notes, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	var st models.Strategy
	var convention, status, legsJSON string
	var positionsJSON, notes sql.NullString

	if err := row.Scan(&st.ID, &st.Name, &st.Ticker, &convention, &st.CurrentPrice, &legsJSON, &positionsJSON, &status, &notes, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Convention = models.Convention(convention)
	st.Status = models.StrategyStatus(status)
	st.Notes = notes.String

	if err := json.Unmarshal([]byte(legsJSON), &st.Legs); err != nil {
		return nil, fmt.Errorf("failed to decode legs of %s: %w", st.ID, err)
	}
	if positionsJSON.Valid && positionsJSON.String != "" && positionsJSON.String != "null" {
		if err := json.Unmarshal([]byte(positionsJSON.String), &st.Positions); err != nil {
			return nil, fmt.Errorf("failed to decode positions of %s: %w", st.ID, err)
		}
	}
	return &st, nil
}

// GetStrategy retrieves a strategy by ID.
func (s *SQLiteStore) GetStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+strategyColumns+" FROM strategies WHERE id = ?", id)
	st, err := scanStrategy(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "strategy %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return st, nil
}

// ListStrategies retrieves strategies, most recently updated first.
func (s *SQLiteStore) ListStrategies(ctx context.Context, filter StrategyFilter) ([]models.Strategy, error) {
	query := "SELECT " + strategyColumns + " FROM strategies WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(filter.Ticker))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var out []models.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		out = append(out, *st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}
	return out, nil
}

// DeleteStrategy removes a strategy.
func (s *SQLiteStore) DeleteStrategy(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "strategy %s", id)
	}
	return nil
}

// ============================================================================
// Rate Cache Methods
// ============================================================================

// SaveRate appends a fetched quote.
func (s *SQLiteStore) SaveRate(ctx context.Context, q rates.Quote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_cache (rate, source, fetched_at) VALUES (?, ?, ?)
	`, q.Rate, q.Source, q.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save rate: %w", err)
	}
	return nil
}

// LatestRate returns the most recently fetched quote.
func (s *SQLiteStore) LatestRate(ctx context.Context) (rates.Quote, error) {
	var rate float64
	var source string
	var fetchedAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT rate, source, fetched_at FROM rate_cache ORDER BY fetched_at DESC, id DESC LIMIT 1
	`).Scan(&rate, &source, &fetchedAt)
	if err == sql.ErrNoRows {
		return rates.Quote{}, errors.Wrap(errors.ErrNotFound, "no cached rate")
	}
	if err != nil {
		return rates.Quote{}, fmt.Errorf("failed to get latest rate: %w", err)
	}
	return rates.NewQuote(rate, source, fetchedAt), nil
}

// ============================================================================
// Search History Methods
// ============================================================================

// LogSearchRun saves a search outcome.
func (s *SQLiteStore) LogSearchRun(ctx context.Context, run *models.SearchRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	partial := 0
	if run.Partial {
		partial = 1
	}
	var bestExpiration interface{}
	if !run.BestExpiration.IsZero() {
		bestExpiration = run.BestExpiration
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_runs (id, ticker, variant, target_price, code, best_strike, best_expiration, best_pnl, candidates, partial, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, strings.ToUpper(run.Ticker), run.Variant, run.TargetPrice, run.Code, run.BestStrike, bestExpiration, run.BestPnL, run.Candidates, partial, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log search run: %w", err)
	}
	return nil
}

// GetSearchRuns retrieves search history, newest first.
func (s *SQLiteStore) GetSearchRuns(ctx context.Context, filter SearchRunFilter) ([]models.SearchRun, error) {
	query := "SELECT id, ticker, variant, target_price, code, best_strike, best_expiration, best_pnl, candidates, partial, created_at FROM search_runs WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, strings.ToUpper(filter.Ticker))
	}
	if filter.Variant != "" {
		query += " AND variant = ?"
		args = append(args, filter.Variant)
	}
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query search runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SearchRun
	for rows.Next() {
		var r models.SearchRun
		var code sql.NullString
		var bestStrike, bestPnL sql.NullFloat64
		var bestExpiration sql.NullTime
		var partial int

		if err := rows.Scan(&r.ID, &r.Ticker, &r.Variant, &r.TargetPrice, &code, &bestStrike, &bestExpiration, &bestPnL, &r.Candidates, &partial, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search run: %w", err)
		}
		r.Code = code.String
		r.BestStrike = bestStrike.Float64
		r.BestPnL = bestPnL.Float64
		if bestExpiration.Valid {
			r.BestExpiration = bestExpiration.Time
		}
		r.Partial = partial == 1
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search runs: %w", err)
	}
	return runs, nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
