// Package http exposes pricing, coupon validation and checkout over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"usage-billing/core/checkout"
	"usage-billing/core/pricing"
	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
	"usage-billing/internal/logging"
	"usage-billing/internal/observability"
)

const headerRequestID = "X-Request-ID"

// Config holds HTTP adapter configuration
type Config struct {
	// Address to listen on
	Address string `json:"address" mapstructure:"address"`

	// ReadTimeout for requests
	ReadTimeout time.Duration `json:"read_timeout" mapstructure:"read_timeout"`

	// WriteTimeout for responses
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`

	// MaxBodySize limits request body size
	MaxBodySize int64 `json:"max_body_size" mapstructure:"max_body_size"`

	// EnableCORS enables CORS headers
	EnableCORS bool `json:"enable_cors" mapstructure:"enable_cors"`

	// AllowedOrigins for CORS
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`

	// EnableMetrics exposes /metrics
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Address:        ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxBodySize:    64 * 1024,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableMetrics:  true,
	}
}

// Adapter is the HTTP adapter
type Adapter struct {
	orch    *checkout.Orchestrator
	config  *Config
	logger  *zap.Logger
	metrics *observability.Metrics
	server  *http.Server
}

// New creates a new HTTP adapter. logger and metrics may be nil.
func New(orch *checkout.Orchestrator, config *Config, logger *zap.Logger, metrics *observability.Metrics) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		orch:    orch,
		config:  config,
		logger:  logging.OrGlobal(logger, "http"),
		metrics: metrics,
	}
	a.server = &http.Server{
		Addr:         config.Address,
		Handler:      a.Router(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return a
}

// Router returns the HTTP handler
func (a *Adapter) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(a.requestIDMiddleware)
	r.Use(chimw.RealIP)
	r.Use(a.loggingMiddleware)
	r.Use(a.recoveryMiddleware)
	r.Use(a.corsMiddleware)

	// Health endpoints
	r.Get("/health", a.handleHealth)
	r.Get("/ready", a.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", a.handleCatalog)
		r.Post("/quotes", a.handleQuote)
		r.Post("/coupons/validate", a.handleValidateCoupon)
		r.Get("/coupons/examples", a.handleExampleCoupons)
		r.Post("/checkout", a.handleCheckout)
		r.Get("/checkout/sessions/{id}", a.handlePaymentStatus)
	})

	if a.config.EnableMetrics && a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	return r
}

// Start starts the HTTP server and blocks until it stops. A server shut down
// before or while serving returns nil.
func (a *Adapter) Start() error {
	a.logger.Info("http server listening", zap.String("address", a.config.Address))
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (a *Adapter) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// QuoteRequest prices either a metered quantity or a fixed package
type QuoteRequest struct {
	Kind      string   `json:"kind,omitempty"`
	Quantity  *float64 `json:"quantity,omitempty"`
	PackageID string   `json:"packageId,omitempty"`
}

// QuoteResponse is a priced quote
type QuoteResponse struct {
	Kind            types.ResourceKind `json:"kind"`
	Quantity        float64            `json:"quantity"`
	Unit            string             `json:"unit"`
	Currency        types.Currency     `json:"currency"`
	TotalPrice      float64            `json:"totalPrice"`
	DisplayTotal    string             `json:"displayTotal"`
	AverageUnitRate float64            `json:"averageUnitRate"`
	Description     string             `json:"description"`
	Breakdown       []TierChargeJSON   `json:"breakdown"`
}

// TierChargeJSON is one tier of a quote breakdown
type TierChargeJSON struct {
	From     float64 `json:"from"`
	To       float64 `json:"to"`
	Units    float64 `json:"units"`
	UnitRate float64 `json:"unitRate"`
	Amount   float64 `json:"amount"`
}

// CouponRequest carries a code typed by the buyer
type CouponRequest struct {
	Code string `json:"code"`
}

// CouponResponse is the outcome of a coupon validation
type CouponResponse struct {
	Code            string  `json:"code"`
	Valid           bool    `json:"valid"`
	DiscountPercent float64 `json:"discountPercent"`
	Description     string  `json:"description,omitempty"`
	Message         string  `json:"message,omitempty"`
}

// CheckoutRequest selects what to buy. Exactly one of Kind+Quantity,
// PackageID or PlanID is expected; the amount is always computed here.
type CheckoutRequest struct {
	Kind       string   `json:"kind,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
	PackageID  string   `json:"packageId,omitempty"`
	PlanID     string   `json:"planId,omitempty"`

	// Currency is optional and must match the catalog currency when set
	Currency   string `json:"currency,omitempty"`
	CouponCode string `json:"couponCode,omitempty"`
}

// CheckoutResponse points the buyer to the hosted checkout page
type CheckoutResponse struct {
	CheckoutURL      string         `json:"checkoutUrl"`
	SessionID        string         `json:"sessionId"`
	Mode             string         `json:"mode"`
	AmountMinorUnits int64          `json:"amountMinorUnits,omitempty"`
	Currency         types.Currency `json:"currency"`
}

// PaymentStatusResponse is the post-checkout confirmation
type PaymentStatusResponse struct {
	SessionID     string              `json:"sessionId"`
	PaymentStatus string              `json:"paymentStatus"`
	SessionStatus string              `json:"sessionStatus,omitempty"`
	Mode          string              `json:"mode"`
	AmountTotal   int64               `json:"amountTotal"`
	Currency      types.Currency      `json:"currency"`
	Subscription  *SubscriptionStatus `json:"subscription,omitempty"`
}

// SubscriptionStatus describes a created subscription
type SubscriptionStatus struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

// Handler implementations

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *Adapter) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.orch == nil || a.orch.Catalog() == nil {
		a.writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *Adapter) handleCatalog(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.orch.Catalog())
}

func (a *Adapter) handleExampleCoupons(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"coupons": a.orch.Catalog().ExampleCoupons,
	})
}

func (a *Adapter) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		quote       *types.PricingQuote
		description string
		err         error
	)
	if req.PackageID != "" {
		var pkg types.Package
		if pkg, err = a.orch.Catalog().Package(req.PackageID); err == nil {
			quote, err = a.orch.Quote(pkg.Kind, pkg.Quantity)
			description = pkg.Description
		}
	} else {
		var kind types.ResourceKind
		var quantity float64
		if kind, quantity, err = a.meteredSelection(req.Kind, req.Quantity); err == nil {
			quote, err = a.orch.Quote(kind, quantity)
			description = pricing.Describe(kind, quantity)
		}
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, a.buildQuoteResponse(quote, description))
}

func (a *Adapter) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := a.orch.ValidateCoupon(r.Context(), req.Code)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, CouponResponse{
		Code:            result.Code,
		Valid:           result.Valid,
		DiscountPercent: result.DiscountPercent,
		Description:     result.Description,
		Message:         result.Message,
	})
}

func (a *Adapter) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	currency := types.Currency(req.Currency)
	coupon := strings.ToUpper(strings.TrimSpace(req.CouponCode))

	var (
		checkoutReq *types.CheckoutRequest
		err         error
	)
	switch {
	case req.PlanID != "":
		checkoutReq, err = a.orch.BuildSubscriptionRequest(req.PlanID, currency, coupon)
	case req.PackageID != "":
		_, checkoutReq, err = a.orch.PackageCheckout(req.PackageID, currency, coupon)
	default:
		var kind types.ResourceKind
		var quantity float64
		if kind, quantity, err = a.meteredSelection(req.Kind, req.Quantity); err == nil {
			_, checkoutReq, err = a.orch.QuoteCheckout(kind, quantity, currency, coupon)
		}
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	session, err := a.orch.SubmitCheckout(r.Context(), checkoutReq)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, CheckoutResponse{
		CheckoutURL:      session.CheckoutURL,
		SessionID:        session.SessionID,
		Mode:             string(checkoutReq.Mode),
		AmountMinorUnits: checkoutReq.AmountMinorUnits,
		Currency:         checkoutReq.Currency,
	})
}

func (a *Adapter) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.orch.PaymentStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	resp := PaymentStatusResponse{
		SessionID:     status.SessionID,
		PaymentStatus: string(status.PaymentStatus),
		SessionStatus: status.SessionStatus,
		Mode:          string(status.Mode),
		AmountTotal:   status.AmountTotal,
		Currency:      status.Currency,
	}
	if sub := status.Subscription; sub != nil {
		resp.Subscription = &SubscriptionStatus{ID: sub.ID, Status: sub.Status}
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			resp.Subscription.CurrentPeriodEnd = &end
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

// meteredSelection resolves a kind and quantity and enforces the offered range
func (a *Adapter) meteredSelection(rawKind string, quantity *float64) (types.ResourceKind, float64, error) {
	kind, ok := types.ParseResourceKind(rawKind)
	if !ok {
		return "", 0, apperrors.Newf(apperrors.TypeInput, "unknown resource kind %q", rawKind)
	}
	if quantity == nil {
		return "", 0, apperrors.Input("quantity is required")
	}
	table, ok := a.orch.Table(kind)
	if !ok {
		return "", 0, apperrors.NotFound("tier table", string(kind))
	}
	if !table.InRange(*quantity) {
		return "", 0, apperrors.Newf(apperrors.TypeInvalidQuantity,
			"%s quantity must be between %v and %v, got %v", kind, table.Min, table.Max, *quantity)
	}
	return kind, *quantity, nil
}

func (a *Adapter) buildQuoteResponse(quote *types.PricingQuote, description string) *QuoteResponse {
	resp := &QuoteResponse{
		Kind:            quote.ResourceKind,
		Quantity:        quote.RequestedQuantity,
		Unit:            quote.Unit,
		Currency:        a.orch.Catalog().Currency,
		TotalPrice:      quote.TotalPrice,
		DisplayTotal:    pricing.FormatMoney(quote.TotalPrice),
		AverageUnitRate: quote.AverageUnitRate,
		Description:     description,
		Breakdown:       make([]TierChargeJSON, 0, len(quote.Breakdown)),
	}
	for _, c := range quote.Breakdown {
		resp.Breakdown = append(resp.Breakdown, TierChargeJSON{
			From:     c.From,
			To:       c.To,
			Units:    c.Units,
			UnitRate: c.UnitRate,
			Amount:   c.Amount,
		})
	}
	return resp
}

// Middleware

type ctxKeyRequestID struct{}

// RequestID returns the request id stored by the request id middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

func (a *Adapter) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
	})
}

func (a *Adapter) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.config.EnableCORS {
			if origin := a.allowedOrigin(r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Adapter) allowedOrigin(origin string) string {
	for _, allowed := range a.config.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func (a *Adapter) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)

		a.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), duration)
		a.logger.Info("http request",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", duration),
		)
	})
}

func (a *Adapter) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.logger.Error("panic in handler",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				a.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Helpers

func (a *Adapter) parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, a.config.MaxBodySize))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (a *Adapter) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (a *Adapter) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeAppError maps a domain error onto a status code and a safe message
func (a *Adapter) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	errType := apperrors.TypeOf(err)
	status := statusFor(errType)

	message := "internal server error"
	switch errType {
	case apperrors.TypeValidationTransport:
		message = "could not reach payment service, try again"
	case apperrors.TypeStatusLookup:
		message = "could not load payment status, try again"
	default:
		if appErr, ok := apperrors.As(err); ok && status != http.StatusInternalServerError {
			message = appErr.Message
		}
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("type", string(errType)),
			zap.Error(err),
		)
	}

	a.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"code":    string(errType),
		"error":   message,
	})
}

func statusFor(t apperrors.Type) int {
	switch t {
	case apperrors.TypeInput, apperrors.TypeInvalidQuantity, apperrors.TypeInvalidAmount,
		apperrors.TypeCouponInvalid, apperrors.TypeParsing:
		return http.StatusBadRequest
	case apperrors.TypeNotFound:
		return http.StatusNotFound
	case apperrors.TypeValidationTransport, apperrors.TypeCheckoutService, apperrors.TypeStatusLookup:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
