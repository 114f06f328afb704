// Package gateway is the HTTP client for the serverless functions that front
// the payments provider: coupon validation, checkout session creation and
// payment status lookup.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
	"usage-billing/internal/logging"
)

const (
	pathValidateCoupon = "/validate-coupon"
	pathCreateSession  = "/create-checkout-session"
	pathPaymentStatus  = "/payment-status"

	// maxResponseSize bounds how much of a response body is read
	maxResponseSize = 1 << 20
)

// Config configures the gateway client
type Config struct {
	// BaseURL of the payment functions, e.g. https://example.com/.netlify/functions
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey is sent as a bearer token when set
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// Timeout for a single call
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8888/.netlify/functions",
		Timeout: 15 * time.Second,
	}
}

// Client talks to the payment functions over HTTP
type Client struct {
	config     Config
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client. httpClient may be nil.
func New(config Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(config.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.Config(fmt.Sprintf("invalid gateway base url %q", config.BaseURL), err)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		baseURL:    strings.TrimRight(base.String(), "/"),
		httpClient: httpClient,
		logger:     logging.OrGlobal(logger, "gateway"),
	}, nil
}

type validateCouponRequest struct {
	CouponCodeInput string `json:"couponCodeInput"`
}

type validateCouponResponse struct {
	Valid           bool    `json:"valid"`
	DiscountPercent float64 `json:"discountPercent"`
	Description     string  `json:"description"`
	Message         string  `json:"message"`
}

type createSessionRequest struct {
	Mode               string `json:"mode"`
	AmountMinorUnits   int64  `json:"amountMinorUnits,omitempty"`
	Currency           string `json:"currency"`
	ProductDescription string `json:"productDescription,omitempty"`
	PriceID            string `json:"priceId,omitempty"`
	CouponCode         string `json:"couponCode,omitempty"`
}

type createSessionResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type paymentStatusResponse struct {
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	AmountTotal   int64  `json:"amountTotal"`
	Currency      string `json:"currency"`
	Subscription  *struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		CurrentPeriodEnd int64  `json:"currentPeriodEnd"`
	} `json:"subscription"`
}

// ValidateCoupon asks the coupon service about code. A 400, 404, 410 or 422
// answer is a rejection; anything else that is not a 2xx is a transport error.
func (c *Client) ValidateCoupon(ctx context.Context, code string) (*types.CouponResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, pathValidateCoupon, validateCouponRequest{CouponCodeInput: code}, nil)
	if err != nil {
		return nil, apperrors.ValidationTransport(err)
	}

	switch {
	case status >= 200 && status < 300:
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusGone, status == http.StatusUnprocessableEntity:
		return &types.CouponResult{
			Coupon:      types.Coupon{Code: code},
			Message:     errorMessage(body),
			ValidatedAt: time.Now(),
		}, nil
	default:
		return nil, apperrors.ValidationTransport(statusError(status, body))
	}

	var resp validateCouponResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.ValidationTransport(fmt.Errorf("failed to decode coupon response: %w", err))
	}

	return &types.CouponResult{
		Coupon: types.Coupon{
			Code:            code,
			DiscountPercent: resp.DiscountPercent,
			Description:     resp.Description,
			Valid:           resp.Valid,
		},
		Message:     resp.Message,
		ValidatedAt: time.Now(),
	}, nil
}

// CreateSession sends req once. The idempotency key travels as a header so the
// provider can deduplicate a request the user resubmits.
func (c *Client) CreateSession(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutSession, error) {
	payload := createSessionRequest{
		Mode:               string(req.Mode),
		AmountMinorUnits:   req.AmountMinorUnits,
		Currency:           req.Currency.Lower(),
		ProductDescription: req.ProductDescription,
		PriceID:            req.PriceID,
		CouponCode:         req.CouponCode,
	}
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	status, body, err := c.do(ctx, http.MethodPost, pathCreateSession, payload, headers)
	if err != nil {
		return nil, apperrors.CheckoutService("could not reach checkout service, try again", err)
	}
	if status < 200 || status >= 300 {
		msg := errorMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("checkout service returned %d", status)
		}
		return nil, apperrors.CheckoutService(msg, statusError(status, body))
	}

	var resp createSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.CheckoutService("checkout service sent an unreadable response", err)
	}
	if resp.CheckoutURL == "" {
		return nil, apperrors.CheckoutService("checkout service returned no checkout url", nil)
	}

	return &types.CheckoutSession{CheckoutURL: resp.CheckoutURL, SessionID: resp.SessionID}, nil
}

// PaymentStatus reads a checkout session. A 404 is returned as NOT_FOUND.
func (c *Client) PaymentStatus(ctx context.Context, sessionID string) (*types.PaymentStatus, error) {
	path := pathPaymentStatus + "?session_id=" + url.QueryEscape(sessionID)
	status, body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apperrors.NotFound("checkout session", sessionID)
	}
	if status < 200 || status >= 300 {
		return nil, statusError(status, body)
	}

	var resp paymentStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.Parsing("failed to decode payment status", err)
	}

	out := &types.PaymentStatus{
		SessionID:     sessionID,
		PaymentStatus: types.PaymentState(resp.PaymentStatus),
		SessionStatus: resp.Status,
		Mode:          types.CheckoutMode(resp.Mode),
		AmountTotal:   resp.AmountTotal,
		Currency:      types.Currency(resp.Currency).Normalize(),
	}
	if resp.Subscription != nil {
		sub := &types.SubscriptionInfo{ID: resp.Subscription.ID, Status: resp.Subscription.Status}
		if resp.Subscription.CurrentPeriodEnd > 0 {
			sub.CurrentPeriodEnd = time.Unix(resp.Subscription.CurrentPeriodEnd, 0).UTC()
		}
		out.Subscription = sub
	}
	return out, nil
}

// do performs one call and returns the status code and body
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, headers map[string]string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("gateway request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.StatusCode, body, nil
}

func errorMessage(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error
}

func statusError(status int, body []byte) error {
	if msg := errorMessage(body); msg != "" {
		return fmt.Errorf("gateway returned %d: %s", status, msg)
	}
	return fmt.Errorf("gateway returned %d", status)
}
