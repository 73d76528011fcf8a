package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSessionStartedAndStoppedTrackActiveGauge(t *testing.T) {
	c := New()
	c.RecordSessionStarted()
	c.RecordSessionStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.SessionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.SessionsStarted))

	c.RecordSessionStopped()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SessionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.SessionsStopped))
}

func TestRecordReloadIncrementsFailuresOnlyOnError(t *testing.T) {
	c := New()
	c.RecordReload("reload", 120, nil)
	c.RecordReload("reload", 80, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.ReloadFailures.WithLabelValues("reload")))
}

func TestRecordLogLineLabelsBySource(t *testing.T) {
	c := New()
	c.RecordLogLine("app")
	c.RecordLogLine("app")
	c.RecordLogLine("daemon")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.LogLinesTotal.WithLabelValues("app")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.LogLinesTotal.WithLabelValues("daemon")))
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	c := New()
	c.RecordSessionStarted()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "fdemon_sessions_active")
}
