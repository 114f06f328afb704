package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTable() *TierTable {
	return &TierTable{
		Kind: ResourceConsultationHours,
		Unit: "hour",
		Min:  1,
		Max:  100,
		Tiers: []Tier{
			{Capacity: 5, UnitRate: 60},
			{Capacity: 5, UnitRate: 55},
			{UnitRate: 40},
		},
	}
}

func TestParseResourceKind(t *testing.T) {
	tests := []struct {
		in   string
		want ResourceKind
		ok   bool
	}{
		{"tokens", ResourceTokens, true},
		{"TOKENS", ResourceTokens, true},
		{"consultationHours", ResourceConsultationHours, true},
		{"consultation_hours", ResourceConsultationHours, true},
		{" development_hours ", ResourceDevelopmentHours, true},
		{"gpuHours", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseResourceKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTierTableValidate(t *testing.T) {
	require.NoError(t, validTable().Validate())

	tests := []struct {
		name   string
		mutate func(*TierTable)
	}{
		{"empty", func(tt *TierTable) { tt.Tiers = nil }},
		{"unknown kind", func(tt *TierTable) { tt.Kind = "gpu" }},
		{"bounded last tier", func(tt *TierTable) { tt.Tiers[2].Capacity = 10 }},
		{"unbounded middle tier", func(tt *TierTable) { tt.Tiers[1].Capacity = 0 }},
		{"negative capacity", func(tt *TierTable) { tt.Tiers[0].Capacity = -1 }},
		{"rate increases", func(tt *TierTable) { tt.Tiers[1].UnitRate = 70 }},
		{"zero rate", func(tt *TierTable) { tt.Tiers[2].UnitRate = 0 }},
		{"nan rate", func(tt *TierTable) { tt.Tiers[0].UnitRate = math.NaN() }},
		{"bad range", func(tt *TierTable) { tt.Min = 0 }},
		{"inverted range", func(tt *TierTable) { tt.Max = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := validTable()
			tt.mutate(table)
			assert.Error(t, table.Validate())
		})
	}
}

func TestTierTableRangeHelpers(t *testing.T) {
	table := validTable()

	assert.Equal(t, 10.0, table.FiniteCapacity())
	assert.True(t, table.InRange(1))
	assert.True(t, table.InRange(100))
	assert.False(t, table.InRange(100.5))
	assert.Equal(t, 1.0, table.Clamp(-3))
	assert.Equal(t, 1.0, table.Clamp(math.NaN()))
	assert.Equal(t, 100.0, table.Clamp(250))
	assert.Equal(t, 42.0, table.Clamp(42))
}

func TestTierTableCloneIsIndependent(t *testing.T) {
	table := validTable()
	clone := table.Clone()
	clone.Tiers[0].UnitRate = 1

	assert.Equal(t, 60.0, table.Tiers[0].UnitRate)
}

func TestCurrency(t *testing.T) {
	assert.Equal(t, CurrencyUSD, Currency(" usd ").Normalize())
	assert.True(t, CurrencyEUR.IsSupported())
	assert.False(t, Currency("XYZ").IsSupported())

	exp, ok := CurrencyJPY.MinorUnitExponent()
	assert.True(t, ok)
	assert.Equal(t, int32(0), exp)
	assert.Equal(t, "gbp", CurrencyGBP.Lower())
}

func TestPaymentStatusIsTerminal(t *testing.T) {
	assert.True(t, (&PaymentStatus{PaymentStatus: PaymentPaid}).IsTerminal())
	assert.True(t, (&PaymentStatus{PaymentStatus: PaymentNoPaymentRequired}).IsTerminal())
	assert.True(t, (&PaymentStatus{PaymentStatus: PaymentUnpaid, SessionStatus: "expired"}).IsTerminal())
	assert.False(t, (&PaymentStatus{PaymentStatus: PaymentUnpaid, SessionStatus: "open"}).IsTerminal())
}

func TestCouponResultErr(t *testing.T) {
	valid := &CouponResult{Coupon: Coupon{Code: "WELCOME10", Valid: true, DiscountPercent: 10}}
	assert.NoError(t, valid.Err())

	invalid := &CouponResult{Coupon: Coupon{Code: "OLD"}}
	err := invalid.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COUPON_INVALID")
}
