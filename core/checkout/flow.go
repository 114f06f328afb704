package checkout

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"usage-billing/core/pricing"
	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
)

// Flow is one buyer's checkout flow: the selected quantity, the last
// validated coupon and at most one in-flight submission. Coupon and checkout
// responses that arrive after a newer coupon request, ClearCoupon or Reset
// are discarded.
type Flow struct {
	orch     *Orchestrator
	currency types.Currency

	mu     sync.Mutex
	seq    uint64
	quote  *types.PricingQuote
	coupon *types.CouponResult

	submitting atomic.Bool
}

// NewFlow starts a checkout flow. currency may be empty; any other value must
// be the catalog currency or Checkout fails with an input error.
func (o *Orchestrator) NewFlow(currency types.Currency) *Flow {
	return &Flow{orch: o, currency: currency.Normalize()}
}

// Select prices quantity units of kind, clamped to the offered range the way
// the storefront slider does. Non-positive and non-finite quantities are not
// clamped and fail with INVALID_QUANTITY.
func (f *Flow) Select(kind types.ResourceKind, quantity float64) (*types.PricingQuote, error) {
	if table, ok := f.orch.calc.Table(kind); ok && quantity > 0 && !math.IsInf(quantity, 1) {
		quantity = table.Clamp(quantity)
	}
	quote, err := f.orch.Quote(kind, quantity)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.quote = quote
	f.mu.Unlock()
	return quote, nil
}

// SelectPackage prices a fixed package
func (f *Flow) SelectPackage(packageID string) (*types.PricingQuote, error) {
	pkg, err := f.orch.catalog.Package(packageID)
	if err != nil {
		return nil, err
	}
	return f.Select(pkg.Kind, pkg.Quantity)
}

// ApplyCoupon validates code. applied is false when a newer ApplyCoupon,
// ClearCoupon or Reset happened while this call was in flight; the flow is
// then left untouched and the returned result is nil.
func (f *Flow) ApplyCoupon(ctx context.Context, code string) (result *types.CouponResult, applied bool, err error) {
	f.mu.Lock()
	f.seq++
	token := f.seq
	f.mu.Unlock()

	result, err = f.orch.ValidateCoupon(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	if token != f.seq {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	if result.Valid {
		f.coupon = result
	} else {
		f.coupon = nil
	}
	return result, true, nil
}

// ClearCoupon drops the applied coupon and any pending validation
func (f *Flow) ClearCoupon() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.coupon = nil
}

// Reset clears the whole flow, e.g. when the buyer navigates away
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.coupon = nil
	f.quote = nil
}

// Coupon returns the applied coupon, if any
func (f *Flow) Coupon() (*types.CouponResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coupon, f.coupon != nil
}

// DisplayTotal is the selected price with the applied coupon taken off, for
// display. ok is false when nothing is selected.
func (f *Flow) DisplayTotal() (total decimal.Decimal, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quote == nil {
		return decimal.Zero, false
	}
	percent := 0.0
	if f.coupon != nil {
		percent = f.coupon.DiscountPercent
	}
	return pricing.DisplayPrice(f.quote.TotalPrice, percent), true
}

// Checkout submits the current selection with the applied coupon code. The
// charged amount is the undiscounted price. Only one submission may be in
// flight; a failed submission is not retried. applied is false when the flow
// was reset or its coupon changed while the submission was in flight; the
// session is then discarded and nil is returned.
func (f *Flow) Checkout(ctx context.Context) (session *types.CheckoutSession, applied bool, err error) {
	if !f.submitting.CompareAndSwap(false, true) {
		return nil, false, apperrors.New(apperrors.TypeCheckoutService, "a checkout is already in progress")
	}
	defer f.submitting.Store(false)

	f.mu.Lock()
	token := f.seq
	quote := f.quote
	couponCode := ""
	if f.coupon != nil {
		couponCode = f.coupon.Code
	}
	f.mu.Unlock()

	if quote == nil {
		return nil, true, apperrors.Input("select a quantity before checkout")
	}

	req, err := f.orch.BuildCheckoutRequest(
		pricing.Describe(quote.ResourceKind, quote.RequestedQuantity),
		quote.TotalPrice,
		f.currency,
		couponCode,
	)
	if err != nil {
		return nil, true, err
	}
	session, err = f.orch.SubmitCheckout(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if token != f.seq {
		f.orch.logger.Info("discarding superseded checkout session", zap.Bool("failed", err != nil))
		return nil, false, nil
	}
	return session, true, err
}
