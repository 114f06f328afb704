package types

import (
	"time"

	apperrors "usage-billing/internal/errors"
)

// CheckoutMode selects one-off payment or recurring subscription
type CheckoutMode string

const (
	ModePayment      CheckoutMode = "payment"
	ModeSubscription CheckoutMode = "subscription"
)

// Coupon is the last validated state of a code, as reported by the coupon service
type Coupon struct {
	Code            string  `json:"code"`
	DiscountPercent float64 `json:"discount_percent"`
	Description     string  `json:"description,omitempty"`
	Valid           bool    `json:"valid"`
}

// CouponResult is the outcome of one validation call
type CouponResult struct {
	Coupon

	// Message is a user-facing explanation
	Message string `json:"message,omitempty"`

	// ValidatedAt is when the coupon service answered
	ValidatedAt time.Time `json:"validated_at"`
}

// Err returns a COUPON_INVALID error for a rejected code, nil otherwise
func (r *CouponResult) Err() error {
	if r.Valid {
		return nil
	}
	return apperrors.CouponInvalid(r.Code)
}

// CheckoutRequest is built once per user action and sent once
type CheckoutRequest struct {
	Mode               CheckoutMode `json:"mode"`
	ProductDescription string       `json:"product_description,omitempty"`

	// AmountMinorUnits is the undiscounted charge in the currency's smallest unit
	AmountMinorUnits int64    `json:"amount_minor_units,omitempty"`
	Currency         Currency `json:"currency"`

	// PriceID selects a catalog price for subscription mode
	PriceID string `json:"price_id,omitempty"`

	// CouponCode is applied by the gateway, never locally
	CouponCode string `json:"coupon_code,omitempty"`

	// IdempotencyKey identifies this request at the gateway
	IdempotencyKey string `json:"idempotency_key"`
}

// CheckoutSession is the gateway's answer to a checkout request
type CheckoutSession struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// PaymentState is the gateway-reported payment status
type PaymentState string

const (
	PaymentPaid              PaymentState = "paid"
	PaymentUnpaid            PaymentState = "unpaid"
	PaymentNoPaymentRequired PaymentState = "no_payment_required"
)

// SubscriptionInfo describes the subscription created by a subscription checkout
type SubscriptionInfo struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end,omitempty"`
}

// PaymentStatus is the read-only post-checkout confirmation
type PaymentStatus struct {
	SessionID     string            `json:"session_id"`
	PaymentStatus PaymentState      `json:"payment_status"`
	SessionStatus string            `json:"session_status,omitempty"`
	Mode          CheckoutMode      `json:"mode"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      Currency          `json:"currency"`
	Subscription  *SubscriptionInfo `json:"subscription,omitempty"`
}

// IsTerminal reports whether the status can no longer change
func (s *PaymentStatus) IsTerminal() bool {
	switch {
	case s.PaymentStatus == PaymentPaid, s.PaymentStatus == PaymentNoPaymentRequired:
		return true
	case s.SessionStatus == "expired":
		return true
	}
	return false
}
