package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"usage-billing/core/checkout"
	"usage-billing/core/pricing"
	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
	"usage-billing/internal/observability"
)

type stubGateway struct {
	mu        sync.Mutex
	submitted []*types.CheckoutRequest

	couponErr  error
	createErr  error
	statusErr  error
	statusResp *types.PaymentStatus
}

func (g *stubGateway) ValidateCoupon(ctx context.Context, code string) (*types.CouponResult, error) {
	if g.couponErr != nil {
		return nil, g.couponErr
	}
	if code == "WELCOME10" {
		return &types.CouponResult{Coupon: types.Coupon{Valid: true, DiscountPercent: 10, Description: "10% off"}}, nil
	}
	return &types.CouponResult{Coupon: types.Coupon{Valid: false}}, nil
}

func (g *stubGateway) CreateSession(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutSession, error) {
	g.mu.Lock()
	g.submitted = append(g.submitted, req)
	g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &types.CheckoutSession{CheckoutURL: "https://pay.example.com/c/cs_42", SessionID: "cs_42"}, nil
}

func (g *stubGateway) PaymentStatus(ctx context.Context, sessionID string) (*types.PaymentStatus, error) {
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.statusResp != nil {
		return g.statusResp, nil
	}
	return &types.PaymentStatus{SessionID: sessionID, PaymentStatus: types.PaymentPaid, Mode: types.ModePayment, AmountTotal: 4400, Currency: types.CurrencyUSD}, nil
}

type testServer struct {
	*httptest.Server
	adapter *Adapter
	gateway *stubGateway
	metrics *observability.Metrics
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T, gw *stubGateway) *testServer {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	catalog := pricing.DefaultCatalog()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	orch := checkout.New(checkout.Deps{
		Calculator: pricing.NewCalculator(catalog),
		Catalog:    catalog,
		Gateway:    gw,
		Logger:     logger,
		Metrics:    metrics,
	}, checkout.Config{StatusAttempts: 2, StatusBackoff: time.Millisecond})

	adapter := New(orch, DefaultConfig(), logger, metrics)
	srv := httptest.NewServer(adapter.Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, adapter: adapter, gateway: gw, metrics: metrics, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	resp, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	resp, body = s.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	s.adapter.Router().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(headerRequestID))
	entries := s.logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "/health", entries[0].ContextMap()["route"])
}

func TestQuoteMetered(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	resp, body := s.do(t, http.MethodPost, "/api/v1/quotes", `{"kind":"consultationHours","quantity":12}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 675.0, body["totalPrice"])
	assert.Equal(t, "675.00", body["displayTotal"])
	assert.Equal(t, "12 hours of consultation", body["description"])
	assert.Len(t, body["breakdown"], 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.QuotesTotal.WithLabelValues("consultationHours", "ok")))
}

func TestQuotePackage(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	resp, body := s.do(t, http.MethodPost, "/api/v1/quotes", `{"packageId":"tokens-starter"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 30.0, body["totalPrice"])
	assert.Equal(t, "Starter token pack", body["description"])
}

func TestQuoteErrors(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"above range", `{"kind":"tokens","quantity":501}`, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"below range", `{"kind":"tokens","quantity":0}`, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"unknown kind", `{"kind":"gpus","quantity":1}`, http.StatusBadRequest, "INPUT_ERROR"},
		{"missing quantity", `{"kind":"tokens"}`, http.StatusBadRequest, "INPUT_ERROR"},
		{"unknown package", `{"packageId":"nope"}`, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, "/api/v1/quotes", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, false, body["success"])
		})
	}

	resp, _ := s.do(t, http.MethodPost, "/api/v1/quotes", `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateCoupon(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	resp, body := s.do(t, http.MethodPost, "/api/v1/coupons/validate", `{"code":" welcome10 "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, 10.0, body["discountPercent"])
	assert.Equal(t, "WELCOME10", body["code"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/coupons/validate", `{"code":"EXPIRED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "invalid or expired code", body["message"])
}

func TestValidateCouponTransportFailure(t *testing.T) {
	s := newTestServer(t, &stubGateway{couponErr: errors.New("dial tcp: connection refused")})

	resp, body := s.do(t, http.MethodPost, "/api/v1/coupons/validate", `{"code":"WELCOME10"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "VALIDATION_TRANSPORT", body["code"])
	assert.Equal(t, "could not reach payment service, try again", body["error"])
}

func TestExampleCoupons(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	resp, body := s.do(t, http.MethodGet, "/api/v1/coupons/examples", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["coupons"])
}

func TestCatalog(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	resp, body := s.do(t, http.MethodGet, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USD", body["currency"])
	assert.Contains(t, body["tables"], "tokens")
}

func TestCheckoutComputesAmountServerSide(t *testing.T) {
	gw := &stubGateway{}
	s := newTestServer(t, gw)

	resp, body := s.do(t, http.MethodPost, "/api/v1/checkout",
		`{"kind":"tokens","quantity":15,"currency":"usd","couponCode":"welcome10","amount":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://pay.example.com/c/cs_42", body["checkoutUrl"])
	assert.Equal(t, "cs_42", body["sessionId"])
	assert.Equal(t, 4400.0, body["amountMinorUnits"])

	require.Len(t, gw.submitted, 1)
	sent := gw.submitted[0]
	assert.Equal(t, int64(4400), sent.AmountMinorUnits)
	assert.Equal(t, types.CurrencyUSD, sent.Currency)
	assert.Equal(t, "WELCOME10", sent.CouponCode)
	assert.NotEmpty(t, sent.IdempotencyKey)
}

func TestCheckoutPackageAndPlan(t *testing.T) {
	gw := &stubGateway{}
	s := newTestServer(t, gw)

	resp, body := s.do(t, http.MethodPost, "/api/v1/checkout", `{"packageId":"consult-kickoff"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment", body["mode"])
	assert.Equal(t, 30000.0, body["amountMinorUnits"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/checkout", `{"planId":"team-monthly"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "subscription", body["mode"])

	require.Len(t, gw.submitted, 2)
	assert.Equal(t, "price_team_monthly", gw.submitted[1].PriceID)
	assert.Equal(t, types.CurrencyUSD, gw.submitted[1].Currency)
}

func TestCheckoutRejectsCurrencyOtherThanCatalog(t *testing.T) {
	gw := &stubGateway{}
	s := newTestServer(t, gw)

	resp, body := s.do(t, http.MethodPost, "/api/v1/quotes", `{"kind":"tokens","quantity":15}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "USD", body["currency"])

	for _, payload := range []string{
		`{"kind":"tokens","quantity":15,"currency":"JPY"}`,
		`{"packageId":"tokens-growth","currency":"eur"}`,
		`{"planId":"team-monthly","currency":"GBP"}`,
	} {
		resp, body = s.do(t, http.MethodPost, "/api/v1/checkout", payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
		assert.Equal(t, "INPUT_ERROR", body["code"], payload)
	}
	assert.Empty(t, gw.submitted)
}

func TestCheckoutErrors(t *testing.T) {
	s := newTestServer(t, &stubGateway{createErr: errors.New("stripe unavailable")})

	resp, body := s.do(t, http.MethodPost, "/api/v1/checkout", `{"kind":"tokens","quantity":10}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "CHECKOUT_SERVICE", body["code"])
	assert.Len(t, s.gateway.submitted, 1)

	resp, body = s.do(t, http.MethodPost, "/api/v1/checkout", `{"kind":"tokens","quantity":10,"currency":"CHF"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INPUT_ERROR", body["code"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/checkout", `{"planId":"enterprise"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestPaymentStatus(t *testing.T) {
	gw := &stubGateway{statusResp: &types.PaymentStatus{
		SessionID:     "cs_sub",
		PaymentStatus: types.PaymentPaid,
		Mode:          types.ModeSubscription,
		AmountTotal:   2900,
		Currency:      types.CurrencyUSD,
		Subscription:  &types.SubscriptionInfo{ID: "sub_1", Status: "active", CurrentPeriodEnd: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
	}}
	s := newTestServer(t, gw)

	resp, body := s.do(t, http.MethodGet, "/api/v1/checkout/sessions/cs_sub", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, "subscription", body["mode"])
	sub, ok := body["subscription"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sub_1", sub["id"])
	assert.Equal(t, "2026-11-01T00:00:00Z", sub["currentPeriodEnd"])
}

func TestPaymentStatusErrors(t *testing.T) {
	s := newTestServer(t, &stubGateway{statusErr: apperrors.NotFound("checkout session", "cs_x")})
	resp, body := s.do(t, http.MethodGet, "/api/v1/checkout/sessions/cs_x", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])

	s = newTestServer(t, &stubGateway{statusErr: errors.New("timeout")})
	resp, body = s.do(t, http.MethodGet, "/api/v1/checkout/sessions/cs_y", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "STATUS_LOOKUP", body["code"])
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/v1/quotes", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example.com")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAllowedOriginList(t *testing.T) {
	a := New(nil, &Config{EnableCORS: true, AllowedOrigins: []string{"https://shop.example.com"}}, zap.NewNop(), nil)
	assert.Equal(t, "https://shop.example.com", a.allowedOrigin("https://shop.example.com"))
	assert.Equal(t, "", a.allowedOrigin("https://evil.example.com"))
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	a := New(nil, DefaultConfig(), zap.New(core), nil)

	handler := a.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic in handler").Len())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubGateway{})
	s.adapter.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	resp, err := s.Client().Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `billing_http_requests_total{method="GET",route="/health",status="200"}`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperrors.TypeInvalidAmount))
	assert.Equal(t, http.StatusBadGateway, statusFor(apperrors.TypeCheckoutService))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperrors.TypeInternal))
}
