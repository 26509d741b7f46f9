package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionlab/internal/config"
	"optionlab/internal/errors"
	"optionlab/internal/marketdata"
	"optionlab/internal/models"
	"optionlab/internal/selection"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "optionlab.db")
	return cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg, zerolog.Nop())
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func dateIn(days int) string {
	return time.Now().AddDate(0, 0, days).Format(models.DateLayout)
}

func chainSnapshot(t *testing.T, days int) string {
	t.Helper()
	exp := dateIn(days)
	return writeJSON(t, map[string]interface{}{
		"ticker": "SPY",
		"contracts": []map[string]interface{}{
			{"strike": 95, "type": "call", "bid": 5.8, "ask": 6, "openInterest": 500, "impliedVolatility": 0.2, "expirationDate": exp},
			{"strike": 100, "type": "call", "bid": 2.9, "ask": 3, "openInterest": 500, "impliedVolatility": 0.2, "expirationDate": exp},
			{"strike": 105, "type": "call", "bid": 1.4, "ask": 1.5, "openInterest": 500, "impliedVolatility": 0.2, "expirationDate": exp},
		},
	})
}

func TestPriceJSON(t *testing.T) {
	out, err := run(t, testConfig(t), "price", "--type", "call", "--underlying", "100", "--strike", "100",
		"--days", "365", "--vol", "0.2", "--rate", "0.05", "--yield", "0", "--json")
	require.NoError(t, err)

	var body struct {
		Model string  `json:"model"`
		Price float64 `json:"price"`
		Rate  float64 `json:"rate"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "black-scholes-merton", body.Model)
	assert.InDelta(t, 10.45, body.Price, 0.01)
	assert.Equal(t, 0.05, body.Rate)
}

func TestPriceRejectsBadType(t *testing.T) {
	_, err := run(t, testConfig(t), "price", "--type", "straddle", "--underlying", "100", "--strike", "100")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestSelectProfitFromSnapshot(t *testing.T) {
	cfg := testConfig(t)
	snap := chainSnapshot(t, 60)

	out, err := run(t, cfg, "select", "profit", "spy", "--price", "100", "--move", "10",
		"--tolerance", "0", "--rate", "0.04", "--snapshot", snap, "--json")
	require.NoError(t, err)

	var res selection.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Best)
	assert.Equal(t, 95.0, res.Best.Strike)
	assert.InDelta(t, 110, res.TargetPrice, 1e-9)
	assert.Len(t, res.Ranked, 3)

	out, err = run(t, cfg, "history", "--json")
	require.NoError(t, err)
	var runs []models.SearchRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "SPY", runs[0].Ticker)
	assert.Equal(t, "profit", runs[0].Variant)
	assert.Equal(t, 95.0, runs[0].BestStrike)
	assert.Empty(t, runs[0].Code)
}

func TestSelectProfitNoDates(t *testing.T) {
	cfg := testConfig(t)
	snap := chainSnapshot(t, 300)

	_, err := run(t, cfg, "select", "profit", "SPY", "--price", "100", "--move", "10",
		"--max-days", "100", "--rate", "0.04", "--snapshot", snap, "--json")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoDates, errors.SearchCode(err))

	out, err := run(t, cfg, "history", "--json")
	require.NoError(t, err)
	var runs []models.SearchRun
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, errors.CodeNoDates, runs[0].Code)
}

func TestSelectHedgeNeedsPriorLeg(t *testing.T) {
	_, err := run(t, testConfig(t), "select", "hedge", "SPY", "--price", "100", "--move", "-10",
		"--snapshot", chainSnapshot(t, 60))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func longCall(t *testing.T) string {
	return writeJSON(t, map[string]interface{}{
		"name":         "long call",
		"ticker":       "SPY",
		"currentPrice": 100,
		"legs": []map[string]interface{}{
			{"type": "CALL", "action": "BUY", "strike": 100, "quantity": 1, "ask": 5, "impliedVolatility": 0.25, "expiration": dateIn(30)},
		},
	})
}

func TestStrategyLifecycle(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "strategy", "save", "--file", longCall(t), "--json")
	require.NoError(t, err)
	var saved models.Strategy
	require.NoError(t, json.Unmarshal([]byte(out), &saved))
	require.NotEmpty(t, saved.ID)

	out, err = run(t, cfg, "strategy", "list", "--json")
	require.NoError(t, err)
	var list []models.Strategy
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "long call", list[0].Name)

	out, err = run(t, cfg, "margin", "--id", saved.ID, "--rate", "0.04", "--json")
	require.NoError(t, err)
	var margin struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &margin))
	assert.InDelta(t, 500, margin.Total, 1e-9)

	_, err = run(t, cfg, "strategy", "delete", saved.ID)
	require.NoError(t, err)
	_, err = run(t, cfg, "strategy", "show", saved.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCurveAtExpiration(t *testing.T) {
	out, err := run(t, testConfig(t), "curve", "--file", longCall(t), "--at-expiration", "--rate", "0.04", "--json")
	require.NoError(t, err)

	var body struct {
		Summary struct {
			MaxLoss    float64   `json:"maxLoss"`
			Breakevens []float64 `json:"breakevens"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.InDelta(t, -500, body.Summary.MaxLoss, 1e-6)
	require.Len(t, body.Summary.Breakevens, 1)
	assert.InDelta(t, 105, body.Summary.Breakevens[0], 0.2)
}

func TestExitPlanRejectsMissingLeg(t *testing.T) {
	_, err := run(t, testConfig(t), "exit-plan", "--file", longCall(t), "--leg", "3", "--target", "110")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestExitPlanSteps(t *testing.T) {
	out, err := run(t, testConfig(t), "exit-plan", "--file", longCall(t), "--target", "110",
		"--steps", "4", "--rate", "0.04", "--json")
	require.NoError(t, err)

	var body struct {
		Steps []struct {
			Quantity int `json:"quantity"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	// a single contract cannot be split further
	total := 0
	for _, st := range body.Steps {
		total += st.Quantity
	}
	assert.Equal(t, 1, total)
}

func TestCollectWritesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	snap := chainSnapshot(t, 60)
	out := filepath.Join(t.TempDir(), "collected.json")

	_, err := run(t, cfg, "collect", "SPY", "--snapshot", snap, "--dates", dateIn(60), "--out", out, "--json")
	require.NoError(t, err)

	fetcher, err := marketdata.LoadSnapshot(out)
	require.NoError(t, err)
	assert.Equal(t, "SPY", fetcher.Snapshot().Ticker)
	assert.Len(t, fetcher.Snapshot().Contracts, 3)
}

func TestRatesFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rates.Fallback = 0.05

	out, err := run(t, cfg, "rates", "--json")
	require.NoError(t, err)

	var body struct {
		Rate   float64 `json:"rate"`
		Source string  `json:"source"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, 0.05, body.Rate)
	assert.Equal(t, "Default fallback", body.Source)
}

func TestVersion(t *testing.T) {
	out, err := run(t, testConfig(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "optionlab v"+Version)
}

func TestGreeksLongCall(t *testing.T) {
	out, err := run(t, testConfig(t), "greeks", "--file", longCall(t), "--rate", "0.04", "--json")
	require.NoError(t, err)

	var body struct {
		Legs      []json.RawMessage   `json:"legs"`
		Portfolio models.OptionGreeks `json:"portfolio"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Len(t, body.Legs, 1)
	// one ATM contract of 100 shares
	assert.Greater(t, body.Portfolio.Delta, 40.0)
	assert.Less(t, body.Portfolio.Delta, 70.0)
	assert.Less(t, body.Portfolio.Theta, 0.0)
}
