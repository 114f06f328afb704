// Package pricing - Tiered marginal pricing
// Every unit is charged at the rate of the tier it falls into; earlier tiers
// are never repriced at a later tier's rate.
package pricing

import (
	"math"

	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
)

// Calculator prices quantities against an immutable set of tier tables
type Calculator struct {
	tables map[types.ResourceKind]*types.TierTable
}

// NewCalculator creates a calculator over the catalog's tables. The tables are
// copied, so later changes to the catalog do not affect the calculator.
func NewCalculator(catalog *Catalog) *Calculator {
	tables := make(map[types.ResourceKind]*types.TierTable, len(catalog.Tables))
	for kind, table := range catalog.Tables {
		tables[kind] = table.Clone()
	}
	return &Calculator{tables: tables}
}

// Table returns a copy of the tier table for kind
func (c *Calculator) Table(kind types.ResourceKind) (*types.TierTable, bool) {
	table, ok := c.tables[kind]
	if !ok {
		return nil, false
	}
	return table.Clone(), true
}

// ComputePrice computes the marginal tiered price for quantity units of kind.
// Quantities above the table's offered range are still priced; the last tier
// is unbounded.
func (c *Calculator) ComputePrice(kind types.ResourceKind, quantity float64) (*types.PricingQuote, error) {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity <= 0 {
		return nil, apperrors.InvalidQuantity(quantity).WithContext("kind", string(kind))
	}

	table, ok := c.tables[kind]
	if !ok {
		return nil, apperrors.NotFound("tier table", string(kind))
	}

	total, breakdown := CalculateTieredCost(quantity, table.Tiers)

	return &types.PricingQuote{
		ResourceKind:      kind,
		RequestedQuantity: quantity,
		TotalPrice:        total,
		AverageUnitRate:   total / quantity,
		Unit:              table.Unit,
		Breakdown:         breakdown,
	}, nil
}

// CalculateTieredCost walks tiers in order, consuming min(remaining, capacity)
// units from each. A zero capacity marks the unbounded tier.
func CalculateTieredCost(quantity float64, tiers []types.Tier) (float64, []types.TierCharge) {
	if quantity <= 0 || len(tiers) == 0 {
		return 0, nil
	}

	var totalCost float64
	var breakdown []types.TierCharge
	remaining := quantity
	consumed := 0.0

	for _, tier := range tiers {
		if remaining <= 0 {
			break
		}

		usageInTier := remaining
		if !tier.IsUnbounded() {
			usageInTier = math.Min(remaining, tier.Capacity)
		}

		amount := usageInTier * tier.UnitRate
		totalCost += amount
		breakdown = append(breakdown, types.TierCharge{
			From:     consumed,
			To:       consumed + usageInTier,
			Units:    usageInTier,
			UnitRate: tier.UnitRate,
			Amount:   amount,
		})

		remaining -= usageInTier
		consumed += usageInTier
	}

	return totalCost, breakdown
}
