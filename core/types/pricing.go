package types

import (
	"fmt"
	"math"
)

// Tier is one block of a marginal tier table
type Tier struct {
	// Capacity is the number of units this tier absorbs (0 = unlimited)
	Capacity float64 `json:"capacity,omitempty"`

	// UnitRate is the price per unit within this tier, in major currency units
	UnitRate float64 `json:"unit_rate"`
}

// IsUnbounded reports whether the tier absorbs all remaining quantity
func (t Tier) IsUnbounded() bool {
	return t.Capacity == 0
}

// TierTable is the ordered tier sequence for one resource kind
type TierTable struct {
	// Kind is the resource kind this table prices
	Kind ResourceKind `json:"kind"`

	// Unit is the human-readable billing unit (e.g. "hour")
	Unit string `json:"unit"`

	// Min is the smallest quantity offered to buyers
	Min float64 `json:"min"`

	// Max is the largest quantity offered to buyers
	Max float64 `json:"max"`

	// Tiers are ordered by ascending cumulative capacity
	Tiers []Tier `json:"tiers"`
}

// Validate checks the table invariants: contiguous tiers, exactly one unbounded
// tier at the end, and non-increasing unit rates.
func (t *TierTable) Validate() error {
	if !t.Kind.IsValid() {
		return fmt.Errorf("unknown resource kind %q", t.Kind)
	}
	if len(t.Tiers) == 0 {
		return fmt.Errorf("%s: tier table is empty", t.Kind)
	}
	if !(t.Min > 0) || t.Max < t.Min || math.IsInf(t.Max, 0) {
		return fmt.Errorf("%s: invalid range [%v, %v]", t.Kind, t.Min, t.Max)
	}

	last := len(t.Tiers) - 1
	for i, tier := range t.Tiers {
		if math.IsNaN(tier.Capacity) || math.IsInf(tier.Capacity, 0) || tier.Capacity < 0 {
			return fmt.Errorf("%s: tier %d has invalid capacity %v", t.Kind, i+1, tier.Capacity)
		}
		if i < last && tier.IsUnbounded() {
			return fmt.Errorf("%s: only the last tier may be unbounded (tier %d)", t.Kind, i+1)
		}
		if i == last && !tier.IsUnbounded() {
			return fmt.Errorf("%s: last tier must be unbounded", t.Kind)
		}
		if !(tier.UnitRate > 0) || math.IsInf(tier.UnitRate, 0) {
			return fmt.Errorf("%s: tier %d has invalid rate %v", t.Kind, i+1, tier.UnitRate)
		}
		if i > 0 && tier.UnitRate > t.Tiers[i-1].UnitRate {
			return fmt.Errorf("%s: tier %d rate %v exceeds previous tier rate %v",
				t.Kind, i+1, tier.UnitRate, t.Tiers[i-1].UnitRate)
		}
	}
	return nil
}

// FiniteCapacity returns the sum of all bounded tier capacities
func (t *TierTable) FiniteCapacity() float64 {
	var total float64
	for _, tier := range t.Tiers {
		total += tier.Capacity
	}
	return total
}

// InRange reports whether quantity lies within the offered range
func (t *TierTable) InRange(quantity float64) bool {
	return quantity >= t.Min && quantity <= t.Max
}

// Clamp limits quantity to the offered range
func (t *TierTable) Clamp(quantity float64) float64 {
	if math.IsNaN(quantity) || quantity < t.Min {
		return t.Min
	}
	if quantity > t.Max {
		return t.Max
	}
	return quantity
}

// Clone returns a deep copy
func (t *TierTable) Clone() *TierTable {
	clone := *t
	clone.Tiers = append([]Tier(nil), t.Tiers...)
	return &clone
}

// TierCharge is the portion of a quote consumed by one tier
type TierCharge struct {
	// From is the first unit (exclusive lower bound) covered by the tier
	From float64 `json:"from"`

	// To is the last unit covered by the charge
	To float64 `json:"to"`

	// Units is the quantity charged in this tier
	Units float64 `json:"units"`

	// UnitRate is the tier rate
	UnitRate float64 `json:"unit_rate"`

	// Amount is Units * UnitRate
	Amount float64 `json:"amount"`
}

// PricingQuote is the result of one price calculation
type PricingQuote struct {
	// ResourceKind is the priced resource
	ResourceKind ResourceKind `json:"resource_kind"`

	// RequestedQuantity is the quantity that was priced
	RequestedQuantity float64 `json:"requested_quantity"`

	// TotalPrice is in major currency units
	TotalPrice float64 `json:"total_price"`

	// AverageUnitRate is TotalPrice / RequestedQuantity
	AverageUnitRate float64 `json:"average_unit_rate"`

	// Unit is the billing unit of the table
	Unit string `json:"unit"`

	// Breakdown lists the charge per tier in order
	Breakdown []TierCharge `json:"breakdown,omitempty"`
}

// Package is a fixed-quantity bundle offered alongside the slider
type Package struct {
	ID          string       `json:"id"`
	Kind        ResourceKind `json:"kind"`
	Quantity    float64      `json:"quantity"`
	Description string       `json:"description"`
}

// Plan is a recurring subscription backed by a gateway price id
type Plan struct {
	ID            string  `json:"id"`
	PriceID       string  `json:"price_id"`
	Description   string  `json:"description"`
	DisplayAmount float64 `json:"display_amount"`
	Interval      string  `json:"interval"`
}

// ExampleCoupon is a code shown as a hint in the UI. It is never used to
// decide whether a code is valid.
type ExampleCoupon struct {
	Code            string  `json:"code"`
	DiscountPercent float64 `json:"discount_percent"`
	Description     string  `json:"description"`
}
