package pricing

import (
	"fmt"
	"sort"
	"strconv"

	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
)

// Catalog is everything the storefront sells: tier tables for metered
// resources, fixed packages, subscription plans and example coupon hints.
// It is built once at startup and treated as read-only afterwards.
type Catalog struct {
	Currency       types.Currency                          `json:"currency"`
	Tables         map[types.ResourceKind]*types.TierTable `json:"tables"`
	Packages       []types.Package                         `json:"packages"`
	Plans          []types.Plan                            `json:"plans"`
	ExampleCoupons []types.ExampleCoupon                   `json:"example_coupons"`
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	return &Catalog{
		Currency: types.CurrencyUSD,
		Tables: map[types.ResourceKind]*types.TierTable{
			types.ResourceTokens: {
				Kind: types.ResourceTokens,
				Unit: "1M tokens",
				Min:  1,
				Max:  500,
				Tiers: []types.Tier{
					{Capacity: 10, UnitRate: 3.00},
					{Capacity: 15, UnitRate: 2.80},
					{Capacity: 25, UnitRate: 2.60},
					{Capacity: 50, UnitRate: 2.40},
					{Capacity: 100, UnitRate: 2.20},
					{UnitRate: 2.00},
				},
			},
			types.ResourceConsultationHours: {
				Kind: types.ResourceConsultationHours,
				Unit: "hour",
				Min:  1,
				Max:  100,
				Tiers: []types.Tier{
					{Capacity: 5, UnitRate: 60.00},
					{Capacity: 5, UnitRate: 55.00},
					{Capacity: 10, UnitRate: 50.00},
					{Capacity: 20, UnitRate: 45.00},
					{UnitRate: 40.00},
				},
			},
			types.ResourceDevelopmentHours: {
				Kind: types.ResourceDevelopmentHours,
				Unit: "hour",
				Min:  1,
				Max:  200,
				Tiers: []types.Tier{
					{Capacity: 10, UnitRate: 95.00},
					{Capacity: 20, UnitRate: 90.00},
					{Capacity: 30, UnitRate: 85.00},
					{Capacity: 60, UnitRate: 80.00},
					{UnitRate: 75.00},
				},
			},
		},
		Packages: []types.Package{
			{ID: "tokens-starter", Kind: types.ResourceTokens, Quantity: 10, Description: "Starter token pack"},
			{ID: "tokens-growth", Kind: types.ResourceTokens, Quantity: 100, Description: "Growth token pack"},
			{ID: "consult-kickoff", Kind: types.ResourceConsultationHours, Quantity: 5, Description: "Architecture kickoff"},
			{ID: "dev-sprint", Kind: types.ResourceDevelopmentHours, Quantity: 40, Description: "Two-week development sprint"},
		},
		Plans: []types.Plan{
			{ID: "developer-monthly", PriceID: "price_developer_monthly", Description: "Developer plan", DisplayAmount: 29, Interval: "month"},
			{ID: "team-monthly", PriceID: "price_team_monthly", Description: "Team plan", DisplayAmount: 99, Interval: "month"},
		},
		ExampleCoupons: []types.ExampleCoupon{
			{Code: "WELCOME10", DiscountPercent: 10, Description: "10% off your first purchase"},
			{Code: "LAUNCH25", DiscountPercent: 25, Description: "Launch week promotion"},
		},
	}
}

// Validate checks every table and the package/plan references
func (c *Catalog) Validate() error {
	if !c.Currency.IsSupported() {
		return apperrors.Newf(apperrors.TypeConfig, "unsupported catalog currency %q", c.Currency)
	}
	if len(c.Tables) == 0 {
		return apperrors.New(apperrors.TypeConfig, "catalog has no tier tables")
	}
	for kind, table := range c.Tables {
		if table == nil || table.Kind != kind {
			return apperrors.Newf(apperrors.TypeConfig, "tier table registered under %q has a different kind", kind)
		}
		if err := table.Validate(); err != nil {
			return apperrors.Config("invalid tier table", err)
		}
	}

	seen := make(map[string]bool)
	for _, pkg := range c.Packages {
		if pkg.ID == "" || seen[pkg.ID] {
			return apperrors.Newf(apperrors.TypeConfig, "package id %q is empty or duplicated", pkg.ID)
		}
		seen[pkg.ID] = true
		table, ok := c.Tables[pkg.Kind]
		if !ok {
			return apperrors.Newf(apperrors.TypeConfig, "package %s references unknown kind %q", pkg.ID, pkg.Kind)
		}
		if !table.InRange(pkg.Quantity) {
			return apperrors.Newf(apperrors.TypeConfig, "package %s quantity %v outside [%v, %v]",
				pkg.ID, pkg.Quantity, table.Min, table.Max)
		}
	}

	seen = make(map[string]bool)
	for _, plan := range c.Plans {
		if plan.ID == "" || seen[plan.ID] {
			return apperrors.Newf(apperrors.TypeConfig, "plan id %q is empty or duplicated", plan.ID)
		}
		seen[plan.ID] = true
		if plan.PriceID == "" {
			return apperrors.Newf(apperrors.TypeConfig, "plan %s has no price id", plan.ID)
		}
	}

	for _, coupon := range c.ExampleCoupons {
		if coupon.DiscountPercent < 0 || coupon.DiscountPercent > 100 {
			return apperrors.Newf(apperrors.TypeConfig, "example coupon %s discount %v outside 0-100",
				coupon.Code, coupon.DiscountPercent)
		}
	}
	return nil
}

// Package looks up a fixed package by id
func (c *Catalog) Package(id string) (types.Package, error) {
	for _, pkg := range c.Packages {
		if pkg.ID == id {
			return pkg, nil
		}
	}
	return types.Package{}, apperrors.NotFound("package", id)
}

// Plan looks up a subscription plan by id
func (c *Catalog) Plan(id string) (types.Plan, error) {
	for _, plan := range c.Plans {
		if plan.ID == id {
			return plan, nil
		}
	}
	return types.Plan{}, apperrors.NotFound("plan", id)
}

// Kinds returns the kinds with tables in display order
func (c *Catalog) Kinds() []types.ResourceKind {
	kinds := make([]types.ResourceKind, 0, len(c.Tables))
	for kind := range c.Tables {
		kinds = append(kinds, kind)
	}
	order := make(map[types.ResourceKind]int, len(types.AllResourceKinds))
	for i, kind := range types.AllResourceKinds {
		order[kind] = i
	}
	sort.Slice(kinds, func(i, j int) bool { return order[kinds[i]] < order[kinds[j]] })
	return kinds
}

// Describe renders a product description for a metered purchase,
// e.g. "12 hours of consultation".
func Describe(kind types.ResourceKind, quantity float64) string {
	qty := strconv.FormatFloat(quantity, 'f', -1, 64)
	switch kind {
	case types.ResourceTokens:
		return fmt.Sprintf("%s million tokens", qty)
	case types.ResourceConsultationHours:
		return fmt.Sprintf("%s %s of consultation", qty, pluralHours(quantity))
	case types.ResourceDevelopmentHours:
		return fmt.Sprintf("%s %s of development", qty, pluralHours(quantity))
	}
	return fmt.Sprintf("%s %s", qty, kind)
}

func pluralHours(quantity float64) string {
	if quantity == 1 {
		return "hour"
	}
	return "hours"
}
