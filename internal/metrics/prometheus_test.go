package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordChainFetch(t *testing.T) {
	ok := testutil.ToFloat64(ChainFetches.WithLabelValues("success"))
	failed := testutil.ToFloat64(ChainFetches.WithLabelValues("error"))
	collected := testutil.ToFloat64(ContractsCollected)

	RecordChainFetch(20*time.Millisecond, 12, nil)
	RecordChainFetch(5*time.Millisecond, 0, errors.New("timeout"))

	assert.Equal(t, ok+1, testutil.ToFloat64(ChainFetches.WithLabelValues("success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(ChainFetches.WithLabelValues("error")))
	assert.Equal(t, collected+12, testutil.ToFloat64(ContractsCollected))
}

func TestRecordSearchAndPoll(t *testing.T) {
	before := testutil.ToFloat64(Searches.WithLabelValues("hedge", "NO_CANDIDATES"))
	RecordSearch("hedge", "NO_CANDIDATES", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(Searches.WithLabelValues("hedge", "NO_CANDIDATES")))

	polls := testutil.ToFloat64(PollRequests.WithLabelValues("cancelled"))
	RecordPoll("cancelled")
	assert.Equal(t, polls+1, testutil.ToFloat64(PollRequests.WithLabelValues("cancelled")))
}

func TestInitIsIdempotentAndServes(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
	RecordRateLookup("fallback")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "optionlab_rate_lookups_total"))
}
