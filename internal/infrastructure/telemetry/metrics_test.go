package telemetry

import (
	"errors"
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
	m := NewMetrics("posgw")

	m.RecordDispatch("m1", "search_read", "ok")
	m.RecordDispatch("m1", "search_read", "ok")
	m.RecordDispatch("m1", "search_read", "11")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("m1", "search_read", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("m1", "search_read", "11")))

	m.RecordReload("P", "refresh", nil)
	m.RecordReload("P", "refresh", errors.New("timeout"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloadsTotal.WithLabelValues("P", "refresh", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloadsTotal.WithLabelValues("P", "refresh", OutcomeError)))

	m.RecordCatalog("P", 42, true)
	m.RecordCatalog("P", 40, false)
	assert.Equal(t, 40.0, testutil.ToFloat64(m.catalogArticles.WithLabelValues("P")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changesTotal.WithLabelValues("P")))
}

func TestMetrics_ERPCallHistogram(t *testing.T) {
	m := NewMetrics("posgw")
	m.ObserveERPCall("search_read", time.Now().Add(-200*time.Millisecond), nil)

	assert.Equal(t, 1, testutil.CollectAndCount(m.erpCallDurations))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("posgw")
	m.RecordDispatch("m1", "connection", "ok")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `posgw_dispatch_requests_total{function="connection",module="m1",status="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDispatch("m1", "x", "ok")
		m.RecordReload("P", "request", nil)
		m.RecordCatalog("P", 1, true)
		m.ObserveERPCall("connect", time.Now(), nil)
	})
	assert.Nil(t, m.Registry())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
