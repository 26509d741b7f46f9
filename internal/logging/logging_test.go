package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	l := FromContext(ctx)
	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
}

func TestFromContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestLogFetchFailureIsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogFetch(logger, "SPY", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), 0, time.Millisecond, assert.AnError)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "2025-03-21", entry["expiration"])
	assert.Equal(t, "SPY", entry["ticker"])
}

func TestLogSearchNoMatch(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogSearch(WithOperation(logger, "select"), "profit", 12, 0, 0, "NO_CANDIDATES")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "NO_CANDIDATES", entry["code"])
	assert.Equal(t, "select", entry["operation"])
	assert.EqualValues(t, 12, entry["evaluated"])
}

func TestNewLoggerWithFileOnly(t *testing.T) {
	cfg := DefaultLogConfig()
	cfg.Console = false
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "test.log")
	cfg.Level = "debug"

	logger := NewLoggerWithConfig(cfg)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
