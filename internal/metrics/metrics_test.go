// ABOUTME: Tests for the Prometheus metrics wrapper
// ABOUTME: Checks counters, nil safety and the exposition handler

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ExchangeFinished(OutcomeCompleted, 2*time.Second)
	m.ExchangeFinished(OutcomeCompleted, time.Second)
	m.ExchangeFinished(OutcomeFailed, time.Second)
	m.EventReconciled("answer")
	m.EventReconciled("answer")
	m.EventReconciled("status")
	m.ParseFailed()
	m.Persisted(PersistSaved)
	m.Persisted(PersistSkipped)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.exchanges.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("answer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persist.WithLabelValues(PersistSaved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persist.WithLabelValues(PersistSkipped)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ExchangeFinished(OutcomeSuperseded, time.Second)
	m.EventReconciled("log")
	m.ParseFailed()
	m.Persisted(PersistFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ParseFailed()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mahakaal_parse_failures_total 1")
}
