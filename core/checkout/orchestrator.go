package checkout

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"usage-billing/core/pricing"
	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
	"usage-billing/internal/logging"
	"usage-billing/internal/observability"
)

const (
	msgCouponApplied = "coupon applied"
	msgCouponInvalid = "invalid or expired code"
	msgCouponEmpty   = "enter a coupon code"
)

// Config controls payment status lookups. Checkout submissions have no retry
// setting: they are never retried.
type Config struct {
	// StatusAttempts is the number of tries for one status lookup
	StatusAttempts int `json:"status_attempts" mapstructure:"status_attempts"`

	// StatusBackoff is the delay before the first retry; it doubles per retry
	StatusBackoff time.Duration `json:"status_backoff" mapstructure:"status_backoff"`

	// StatusTimeout bounds one shared lookup, retries included. It runs
	// detached from any single caller's context.
	StatusTimeout time.Duration `json:"status_timeout" mapstructure:"status_timeout"`

	// StatusCacheSize bounds the number of cached terminal statuses
	StatusCacheSize int `json:"status_cache_size" mapstructure:"status_cache_size"`

	// StatusCacheTTL is how long a terminal status is served from cache
	StatusCacheTTL time.Duration `json:"status_cache_ttl" mapstructure:"status_cache_ttl"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		StatusAttempts:  3,
		StatusBackoff:   200 * time.Millisecond,
		StatusTimeout:   30 * time.Second,
		StatusCacheSize: 1024,
		StatusCacheTTL:  10 * time.Minute,
	}
}

// Deps are the collaborators of an Orchestrator. Logger and Metrics are optional.
type Deps struct {
	Calculator *pricing.Calculator
	Catalog    *pricing.Catalog
	Gateway    Gateway
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Orchestrator builds checkout requests from computed prices, submits them to
// the gateway and validates coupons.
type Orchestrator struct {
	calc    *pricing.Calculator
	catalog *pricing.Catalog
	gateway Gateway
	logger  *zap.Logger
	metrics *observability.Metrics
	config  Config

	lookups  singleflight.Group
	terminal *expirable.LRU[string, *types.PaymentStatus]

	newKey func() string
	now    func() time.Time
}

// New creates an orchestrator
func New(deps Deps, config Config) *Orchestrator {
	defaults := DefaultConfig()
	if config.StatusAttempts <= 0 {
		config.StatusAttempts = defaults.StatusAttempts
	}
	if config.StatusTimeout <= 0 {
		config.StatusTimeout = defaults.StatusTimeout
	}
	if config.StatusCacheSize <= 0 {
		config.StatusCacheSize = defaults.StatusCacheSize
	}
	if config.StatusCacheTTL <= 0 {
		config.StatusCacheTTL = defaults.StatusCacheTTL
	}

	return &Orchestrator{
		calc:     deps.Calculator,
		catalog:  deps.Catalog,
		gateway:  deps.Gateway,
		logger:   logging.OrGlobal(deps.Logger, "checkout"),
		metrics:  deps.Metrics,
		config:   config,
		terminal: expirable.NewLRU[string, *types.PaymentStatus](config.StatusCacheSize, nil, config.StatusCacheTTL),
		newKey:   func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// Quote prices quantity units of kind
func (o *Orchestrator) Quote(kind types.ResourceKind, quantity float64) (*types.PricingQuote, error) {
	quote, err := o.calc.ComputePrice(kind, quantity)
	if err != nil {
		o.metrics.RecordQuote(string(kind), "error")
		return nil, err
	}
	o.metrics.RecordQuote(string(kind), "ok")
	return quote, nil
}

// ValidateCoupon normalizes code and asks the coupon service about it. A
// rejected code returns a result with Valid == false and a nil error; only a
// failure to get an answer returns a VALIDATION_TRANSPORT error.
func (o *Orchestrator) ValidateCoupon(ctx context.Context, code string) (*types.CouponResult, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		o.metrics.RecordCouponValidation("empty")
		return &types.CouponResult{Message: msgCouponEmpty, ValidatedAt: o.now()}, nil
	}

	start := time.Now()
	result, err := o.gateway.ValidateCoupon(ctx, normalized)
	o.metrics.ObserveGateway("validate_coupon", start)
	if err == nil && result == nil {
		err = apperrors.Internal("coupon service returned no result", nil)
	}
	if err == nil && result.Valid && !validPercent(result.DiscountPercent) {
		err = apperrors.Newf(apperrors.TypeInternal, "coupon service returned discount %v outside 0-100", result.DiscountPercent)
	}
	if err != nil {
		o.metrics.RecordCouponValidation("transport_error")
		o.logger.Warn("coupon validation failed", zap.String("code", normalized), zap.Error(err))
		if apperrors.IsType(err, apperrors.TypeValidationTransport) {
			return nil, err
		}
		return nil, apperrors.ValidationTransport(err)
	}

	result.Code = normalized
	if result.ValidatedAt.IsZero() {
		result.ValidatedAt = o.now()
	}
	if !result.Valid {
		result.DiscountPercent = 0
		if result.Message == "" {
			result.Message = msgCouponInvalid
		}
		o.metrics.RecordCouponValidation("invalid")
		o.logger.Debug("coupon rejected", zap.String("code", normalized))
		return result, nil
	}

	if result.Message == "" {
		result.Message = msgCouponApplied
	}
	o.metrics.RecordCouponValidation("valid")
	o.logger.Debug("coupon accepted", zap.String("code", normalized), zap.Float64("discount_percent", result.DiscountPercent))
	return result, nil
}

func validPercent(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

// BuildCheckoutRequest converts a computed major-unit price into a one-off
// payment request. The amount is not discounted; couponCode is passed through
// unchanged for the gateway to apply.
func (o *Orchestrator) BuildCheckoutRequest(description string, computedPrice float64, currency types.Currency, couponCode string) (*types.CheckoutRequest, error) {
	currency, err := o.resolveCurrency(currency)
	if err != nil {
		return nil, err
	}

	amount, err := ToMinorUnits(computedPrice, currency)
	if err != nil {
		return nil, err
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.Input("product description is required")
	}

	return &types.CheckoutRequest{
		Mode:               types.ModePayment,
		ProductDescription: description,
		AmountMinorUnits:   amount,
		Currency:           currency,
		CouponCode:         couponCode,
		IdempotencyKey:     o.newKey(),
	}, nil
}

// BuildSubscriptionRequest builds a subscription request for a catalog plan
func (o *Orchestrator) BuildSubscriptionRequest(planID string, currency types.Currency, couponCode string) (*types.CheckoutRequest, error) {
	plan, err := o.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}
	currency, err = o.resolveCurrency(currency)
	if err != nil {
		return nil, err
	}

	return &types.CheckoutRequest{
		Mode:               types.ModeSubscription,
		ProductDescription: plan.Description,
		Currency:           currency,
		PriceID:            plan.PriceID,
		CouponCode:         couponCode,
		IdempotencyKey:     o.newKey(),
	}, nil
}

// QuoteCheckout prices a metered purchase and builds its checkout request
func (o *Orchestrator) QuoteCheckout(kind types.ResourceKind, quantity float64, currency types.Currency, couponCode string) (*types.PricingQuote, *types.CheckoutRequest, error) {
	quote, err := o.Quote(kind, quantity)
	if err != nil {
		return nil, nil, err
	}
	req, err := o.BuildCheckoutRequest(pricing.Describe(kind, quantity), quote.TotalPrice, currency, couponCode)
	if err != nil {
		return nil, nil, err
	}
	return quote, req, nil
}

// PackageCheckout prices a fixed package and builds its checkout request
func (o *Orchestrator) PackageCheckout(packageID string, currency types.Currency, couponCode string) (*types.PricingQuote, *types.CheckoutRequest, error) {
	pkg, err := o.catalog.Package(packageID)
	if err != nil {
		return nil, nil, err
	}
	quote, err := o.Quote(pkg.Kind, pkg.Quantity)
	if err != nil {
		return nil, nil, err
	}
	description := pkg.Description
	if description == "" {
		description = pricing.Describe(pkg.Kind, pkg.Quantity)
	}
	req, err := o.BuildCheckoutRequest(description, quote.TotalPrice, currency, couponCode)
	if err != nil {
		return nil, nil, err
	}
	return quote, req, nil
}

// SubmitCheckout sends req to the gateway exactly once. Any failure, including
// a timeout, is returned as CHECKOUT_SERVICE and must be retried by the user.
func (o *Orchestrator) SubmitCheckout(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutSession, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	log := o.logger.With(
		zap.String("mode", string(req.Mode)),
		zap.Int64("amount_minor_units", req.AmountMinorUnits),
		zap.String("currency", string(req.Currency)),
		zap.Bool("coupon", req.CouponCode != ""),
		zap.String("idempotency_key", req.IdempotencyKey),
	)

	start := time.Now()
	session, err := o.gateway.CreateSession(ctx, req)
	o.metrics.ObserveGateway("create_session", start)
	if err == nil && (session == nil || session.CheckoutURL == "") {
		err = apperrors.Internal("checkout service returned no checkout url", nil)
	}
	if err != nil {
		o.metrics.RecordCheckout(string(req.Mode), "error")
		log.Error("checkout submission failed", zap.Error(err))
		if apperrors.IsType(err, apperrors.TypeCheckoutService) {
			return nil, err
		}
		return nil, apperrors.CheckoutService("could not create checkout session, try again", err)
	}

	o.metrics.RecordCheckout(string(req.Mode), "ok")
	log.Info("checkout session created", zap.String("session_id", session.SessionID))
	return session, nil
}

func validateRequest(req *types.CheckoutRequest) error {
	if req == nil {
		return apperrors.Input("checkout request is required")
	}
	if !req.Currency.IsSupported() {
		return apperrors.Newf(apperrors.TypeInput, "unsupported currency %q", req.Currency)
	}
	switch req.Mode {
	case types.ModePayment:
		if req.AmountMinorUnits <= 0 {
			return apperrors.InvalidAmount("payment amount must be positive, got %d", req.AmountMinorUnits)
		}
	case types.ModeSubscription:
		if req.PriceID == "" {
			return apperrors.Input("subscription checkout requires a price id")
		}
	default:
		return apperrors.Newf(apperrors.TypeInput, "unknown checkout mode %q", req.Mode)
	}
	return nil
}

// PaymentStatus reads the status of a checkout session. Lookups are
// idempotent: they are retried with backoff, concurrent lookups for one
// session share a single call, and terminal statuses are cached. A caller
// giving up does not fail the other callers sharing its lookup.
func (o *Orchestrator) PaymentStatus(ctx context.Context, sessionID string) (*types.PaymentStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.Input("session id is required")
	}

	if status, ok := o.terminal.Get(sessionID); ok {
		o.metrics.RecordStatusLookup("cached")
		return status, nil
	}

	// The shared lookup outlives any one caller; each caller stops waiting
	// when its own context is done.
	detached := context.WithoutCancel(ctx)
	results := o.lookups.DoChan(sessionID, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(detached, o.config.StatusTimeout)
		defer cancel()
		status, err := o.lookupWithRetry(lookupCtx, sessionID)
		if err != nil {
			return nil, err
		}
		if status.IsTerminal() {
			o.terminal.Add(sessionID, status)
		}
		return status, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		o.metrics.RecordStatusLookup("error")
		return nil, apperrors.StatusLookup(sessionID, ctx.Err())
	case res = <-results:
	}
	if res.Err != nil {
		o.metrics.RecordStatusLookup("error")
		return nil, res.Err
	}

	status := res.Val.(*types.PaymentStatus)
	o.metrics.RecordStatusLookup("remote")
	return status, nil
}

func (o *Orchestrator) lookupWithRetry(ctx context.Context, sessionID string) (*types.PaymentStatus, error) {
	backoff := o.config.StatusBackoff
	var lastErr error

	for attempt := 1; attempt <= o.config.StatusAttempts; attempt++ {
		start := time.Now()
		status, err := o.gateway.PaymentStatus(ctx, sessionID)
		o.metrics.ObserveGateway("payment_status", start)
		if err == nil && status != nil {
			if status.SessionID == "" {
				status.SessionID = sessionID
			}
			return status, nil
		}
		if err == nil {
			err = apperrors.Internal("payment status service returned no result", nil)
		}
		if apperrors.IsType(err, apperrors.TypeNotFound) {
			return nil, err
		}
		lastErr = err

		o.logger.Debug("payment status lookup failed",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == o.config.StatusAttempts {
			break
		}
		if err := sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
	}

	return nil, apperrors.StatusLookup(sessionID, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolveCurrency returns the catalog currency. Tier rates are major units of
// that currency, so naming any other currency is an input error rather than
// a relabelled charge.
func (o *Orchestrator) resolveCurrency(c types.Currency) (types.Currency, error) {
	c = c.Normalize()
	if o.catalog == nil {
		if !c.IsSupported() {
			return "", apperrors.Newf(apperrors.TypeInput, "unsupported currency %q", c)
		}
		return c, nil
	}
	if c != "" && c != o.catalog.Currency {
		return "", apperrors.Newf(apperrors.TypeInput, "prices are in %s, currency %s is not offered", o.catalog.Currency, c).
			WithContext("currency", string(c))
	}
	return o.catalog.Currency, nil
}

// Catalog returns the catalog the orchestrator sells from
func (o *Orchestrator) Catalog() *pricing.Catalog {
	return o.catalog
}

// Table returns a copy of the tier table priced for kind
func (o *Orchestrator) Table(kind types.ResourceKind) (*types.TierTable, bool) {
	return o.calc.Table(kind)
}
