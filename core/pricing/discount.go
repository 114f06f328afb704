package pricing

import (
	"github.com/shopspring/decimal"
)

// DisplayPrice applies a coupon percentage to a computed price for display.
// The result is rounded to cents and clamped to [0, price]. Checkout requests
// always carry the undiscounted price; the gateway applies the coupon itself.
func DisplayPrice(price float64, discountPercent float64) decimal.Decimal {
	p := decimal.NewFromFloat(price)
	pct := decimal.NewFromFloat(discountPercent)
	switch {
	case pct.LessThanOrEqual(decimal.Zero):
		return p.Round(2)
	case pct.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return decimal.Zero.Round(2)
	}

	factor := decimal.NewFromInt(1).Sub(pct.Div(decimal.NewFromInt(100)))
	return p.Mul(factor).Round(2)
}

// FormatMoney renders a major-unit amount with two decimals
func FormatMoney(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}
