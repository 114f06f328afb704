package checkout

import (
	"math"

	"github.com/shopspring/decimal"

	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
)

// ToMinorUnits converts a major-unit price to integer minor units, rounding
// half up. The float is read through its shortest decimal representation, so
// 1.005 becomes 101 cents rather than the 100 a binary float multiply gives.
func ToMinorUnits(amount float64, currency types.Currency) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, apperrors.InvalidAmount("amount must be a positive finite number, got %v", amount).
			WithContext("amount", amount)
	}

	exp, ok := currency.MinorUnitExponent()
	if !ok {
		return 0, apperrors.Newf(apperrors.TypeInput, "unsupported currency %q", currency)
	}

	// Round rounds half away from zero, which is half up for positive amounts.
	minor := decimal.NewFromFloat(amount).Shift(exp).Round(0)
	if !minor.IsPositive() {
		return 0, apperrors.InvalidAmount("amount %v rounds to zero %s", amount, currency)
	}
	if !minor.LessThanOrEqual(decimal.NewFromInt(math.MaxInt64)) {
		return 0, apperrors.InvalidAmount("amount %v is too large", amount)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts gateway minor units back to a major-unit decimal
func FromMinorUnits(minor int64, currency types.Currency) decimal.Decimal {
	exp, ok := currency.MinorUnitExponent()
	if !ok {
		exp = 2
	}
	return decimal.NewFromInt(minor).Shift(-exp)
}
