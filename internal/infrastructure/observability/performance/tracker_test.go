package performance

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerReportsOnce(t *testing.T) {
	tracker := NewTracker()

	m := tracker.StartOperation("metrics:summary", "acct")
	m.AddCacheMiss()
	m.Complete()
	m.Complete()

	assert.True(t, m.Completed)
	assert.Equal(t, 1, testutil.CollectAndCount(tracker.operationDuration))
	assert.Equal(t, float64(1), testutil.ToFloat64(tracker.cacheLookups.WithLabelValues("miss")))
}

func TestCompleteOperationRecordsFailure(t *testing.T) {
	tracker := NewTracker()

	m := tracker.StartOperation("attribution:attribute", "acct")
	tracker.CompleteOperation(m, errors.New("database is locked"))

	assert.False(t, m.Success)
	assert.Equal(t, "database is locked", m.Error)
	assert.Equal(t, float64(1), testutil.ToFloat64(tracker.operationErrors.WithLabelValues("attribution:attribute")))
}

func TestDomainCounters(t *testing.T) {
	tracker := NewTracker()

	tracker.RecordAttribution(OutcomeMatchedEmail)
	tracker.RecordAttribution(OutcomeMatchedEmail)
	tracker.RecordAttribution(OutcomeUnmatched)
	tracker.RecordSchedulerTick(2, 1, nil)
	tracker.RecordSchedulerTick(0, 0, errors.New("boom"))
	tracker.RecordCacheLookup(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(tracker.attributionOutcomes.WithLabelValues(OutcomeMatchedEmail)))
	assert.Equal(t, float64(2), testutil.ToFloat64(tracker.schedulerTransitions.WithLabelValues("active")))
	assert.Equal(t, float64(1), testutil.ToFloat64(tracker.schedulerTicks.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(tracker.cacheLookups.WithLabelValues("hit")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordAttribution(OutcomeMatchedFingerprint)

	rec := httptest.NewRecorder()
	tracker.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `launchtrack_attribution_outcomes_total{outcome="matched_fingerprint"} 1`)
}
