package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordQuote("tokens", "ok")
	m.RecordQuote("tokens", "ok")
	m.RecordCouponValidation("invalid")
	m.RecordCheckout("payment", "error")
	m.RecordStatusLookup("cached")
	m.ObserveGateway("create_session", time.Now())
	m.ObserveHTTP("GET", "/health", "200", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QuotesTotal.WithLabelValues("tokens", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CouponValidationsTotal.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckoutSubmissionsTotal.WithLabelValues("payment", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusLookupsTotal.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordQuote("tokens", "ok")
		m.RecordCouponValidation("valid")
		m.RecordCheckout("payment", "ok")
		m.RecordStatusLookup("remote")
		m.ObserveGateway("validate_coupon", time.Now())
		m.ObserveHTTP("GET", "/", "200", time.Second)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordQuote("consultationHours", "ok")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `billing_quotes_total{kind="consultationHours",outcome="ok"} 1`))
}
