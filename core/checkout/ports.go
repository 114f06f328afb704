// Package checkout turns computed prices into hosted checkout sessions and
// validates coupon codes against the coupon service.
//
// Discount policy: the amount in a CheckoutRequest is always the undiscounted
// computed price. The coupon code travels alongside it and the payment gateway
// applies the discount. Discounted figures shown to buyers come from
// pricing.DisplayPrice and are never sent as the charge.
package checkout

import (
	"context"

	"usage-billing/core/types"
)

// CouponValidator asks the coupon service whether a normalized code applies.
// An unknown or expired code is a valid answer (Valid == false, nil error);
// errors are reserved for failing to get an answer.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string) (*types.CouponResult, error)
}

// SessionCreator creates a hosted checkout session
type SessionCreator interface {
	CreateSession(ctx context.Context, req *types.CheckoutRequest) (*types.CheckoutSession, error)
}

// StatusLookup reads the payment status of a checkout session
type StatusLookup interface {
	PaymentStatus(ctx context.Context, sessionID string) (*types.PaymentStatus, error)
}

// Gateway is the full set of collaborators, typically one HTTP client
type Gateway interface {
	CouponValidator
	SessionCreator
	StatusLookup
}
