// Package observability holds the Prometheus metrics for pricing and checkout.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Pricing metrics
	QuotesTotal *prometheus.CounterVec

	// Checkout metrics
	CouponValidationsTotal   *prometheus.CounterVec
	CheckoutSubmissionsTotal *prometheus.CounterVec
	StatusLookupsTotal       *prometheus.CounterVec
	GatewayRequestDuration   *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		QuotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_quotes_total",
				Help: "Price calculations by resource kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		CouponValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_coupon_validations_total",
				Help: "Coupon validations by outcome (valid, invalid, empty, transport_error)",
			},
			[]string{"outcome"},
		),
		CheckoutSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkout_submissions_total",
				Help: "Checkout session submissions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		StatusLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_status_lookups_total",
				Help: "Payment status lookups by outcome (remote, cached, error)",
			},
			[]string{"outcome"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_gateway_request_duration_seconds",
				Help:    "Latency of calls to the payment gateway functions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.QuotesTotal,
		m.CouponValidationsTotal,
		m.CheckoutSubmissionsTotal,
		m.StatusLookupsTotal,
		m.GatewayRequestDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuote counts one price calculation
func (m *Metrics) RecordQuote(kind, outcome string) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordCouponValidation counts one coupon validation
func (m *Metrics) RecordCouponValidation(outcome string) {
	if m == nil {
		return
	}
	m.CouponValidationsTotal.WithLabelValues(outcome).Inc()
}

// RecordCheckout counts one checkout submission
func (m *Metrics) RecordCheckout(mode, outcome string) {
	if m == nil {
		return
	}
	m.CheckoutSubmissionsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordStatusLookup counts one payment status lookup
func (m *Metrics) RecordStatusLookup(outcome string) {
	if m == nil {
		return
	}
	m.StatusLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGateway records the latency of one gateway call
func (m *Metrics) ObserveGateway(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveHTTP records one served HTTP request
func (m *Metrics) ObserveHTTP(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
