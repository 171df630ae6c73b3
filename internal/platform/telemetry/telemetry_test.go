package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/db"
)

func TestRecordFinalization(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	tp.RecordFinalization(OutcomeFinalized)
	tp.RecordFinalization(OutcomeFinalized)
	tp.RecordFinalization(OutcomeConflict)

	assert.Equal(t, 2.0, testutil.ToFloat64(tp.finalizations.WithLabelValues(OutcomeFinalized)))
	assert.Equal(t, 1.0, testutil.ToFloat64(tp.finalizations.WithLabelValues(OutcomeConflict)))
}

func TestRecordCacheLookup(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	tp.RecordCacheLookup(true)
	tp.RecordCacheLookup(false)
	tp.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(tp.catalogCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(tp.catalogCache.WithLabelValues("miss")))
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	e := echo.New()
	e.Use(tp.MetricsMiddleware())
	e.GET("/api/v1/billings/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/billings/abc", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	got := testutil.ToFloat64(tp.requestsTotal.WithLabelValues(http.MethodGet, "/api/v1/billings/:id", "200"))
	assert.Equal(t, 3.0, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(tp.activeRequests))
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{})
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/x", nil), httptest.NewRecorder())
	c.SetPath("/x")

	h := tp.MetricsMiddleware()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "nope")
	})
	err := h(c)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(tp.requestsTotal.WithLabelValues(http.MethodPost, "/x", "409")))
}

func TestMetricsMiddleware_Disabled(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{MetricsEnabled: BoolPtr(false)})
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())
	c.SetPath("/x")

	sentinel := errors.New("passthrough")
	err := tp.MetricsMiddleware()(func(echo.Context) error { return sentinel })(c)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 0, testutil.CollectAndCount(tp.requestsTotal))
}

func TestPrometheusHandler(t *testing.T) {
	tp := NewTelemetryProvider(TelemetryConfig{ServiceName: "clinic-test"})
	tp.RecordFinalization(OutcomeFinalized)
	tp.RegisterPoolStats(func() *db.PoolStats { return &db.PoolStats{TotalConns: 4, MaxConns: 20} })

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	require.NoError(t, tp.PrometheusHandler()(c))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `clinic_billing_finalizations_total{env="development",outcome="finalized",service="clinic-test"} 1`)
	assert.Contains(t, body, "clinic_db_pool_total_conns 4")
	assert.Contains(t, body, "clinic_build_info")
}
