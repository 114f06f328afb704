package types

import "strings"

// Currency represents an ISO 4217 currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

// minorUnitExponents maps supported currencies to their minor unit exponent
var minorUnitExponents = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyJPY: 0,
}

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// Normalize upper-cases and trims the code
func (c Currency) Normalize() Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(string(c))))
}

// IsSupported reports whether checkout can be priced in this currency
func (c Currency) IsSupported() bool {
	_, ok := minorUnitExponents[c]
	return ok
}

// MinorUnitExponent returns the number of decimal places of the minor unit
// (2 for cents). Unsupported currencies report false.
func (c Currency) MinorUnitExponent() (int32, bool) {
	exp, ok := minorUnitExponents[c]
	return exp, ok
}

// Lower returns the lowercase code used by payment gateways
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}
