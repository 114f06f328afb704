package pricing

import (
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"usage-billing/core/types"
	apperrors "usage-billing/internal/errors"
)

// catalogFile is the HCL shape of a catalog override file:
//
//	currency = "USD"
//
//	resource "tokens" {
//	  unit = "1M tokens"
//	  min  = 1
//	  max  = 500
//
//	  tier {
//	    up_to = 10
//	    rate  = 3.00
//	  }
//	  tier {
//	    rate = 2.00
//	  }
//	}
//
//	package "tokens-starter" {
//	  resource    = "tokens"
//	  quantity    = 10
//	  description = "Starter token pack"
//	}
type catalogFile struct {
	Currency  string          `hcl:"currency,optional"`
	Resources []resourceBlock `hcl:"resource,block"`
	Packages  []packageBlock  `hcl:"package,block"`
	Plans     []planBlock     `hcl:"plan,block"`
	Coupons   []couponBlock   `hcl:"example_coupon,block"`
}

type resourceBlock struct {
	Kind  string      `hcl:"kind,label"`
	Unit  string      `hcl:"unit"`
	Min   float64     `hcl:"min"`
	Max   float64     `hcl:"max"`
	Tiers []tierBlock `hcl:"tier,block"`
}

// up_to is cumulative; the unbounded tier omits it
type tierBlock struct {
	UpTo *float64 `hcl:"up_to,optional"`
	Rate float64  `hcl:"rate"`
}

type packageBlock struct {
	ID          string  `hcl:"id,label"`
	Resource    string  `hcl:"resource"`
	Quantity    float64 `hcl:"quantity"`
	Description string  `hcl:"description,optional"`
}

type planBlock struct {
	ID            string  `hcl:"id,label"`
	PriceID       string  `hcl:"price_id"`
	Description   string  `hcl:"description,optional"`
	DisplayAmount float64 `hcl:"display_amount,optional"`
	Interval      string  `hcl:"interval,optional"`
}

type couponBlock struct {
	Code            string  `hcl:"code,label"`
	DiscountPercent float64 `hcl:"discount_percent"`
	Description     string  `hcl:"description,optional"`
}

// LoadCatalog returns the default catalog, overridden by the HCL file at path
// when path is non-empty. The result is validated.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		catalog := DefaultCatalog()
		if err := catalog.Validate(); err != nil {
			return nil, err
		}
		return catalog, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Config("read catalog file", err).WithContext("path", path)
	}
	return ParseCatalog(path, src)
}

// ParseCatalog decodes HCL source into a catalog. filename must end in .hcl
// and is used in diagnostics.
func ParseCatalog(filename string, src []byte) (*Catalog, error) {
	var file catalogFile
	if err := hclsimple.Decode(filename, src, nil, &file); err != nil {
		return nil, apperrors.Parsing("decode catalog "+filename, err)
	}

	catalog := DefaultCatalog()
	if file.Currency != "" {
		catalog.Currency = types.Currency(file.Currency).Normalize()
	}

	for _, res := range file.Resources {
		table, err := res.toTable()
		if err != nil {
			return nil, err
		}
		catalog.Tables[table.Kind] = table
	}

	if len(file.Packages) > 0 {
		catalog.Packages = catalog.Packages[:0:0]
		for _, p := range file.Packages {
			kind, ok := types.ParseResourceKind(p.Resource)
			if !ok {
				return nil, apperrors.Newf(apperrors.TypeConfig, "package %s: unknown resource %q", p.ID, p.Resource)
			}
			catalog.Packages = append(catalog.Packages, types.Package{
				ID:          p.ID,
				Kind:        kind,
				Quantity:    p.Quantity,
				Description: p.Description,
			})
		}
	}

	if len(file.Plans) > 0 {
		catalog.Plans = catalog.Plans[:0:0]
		for _, p := range file.Plans {
			catalog.Plans = append(catalog.Plans, types.Plan(p))
		}
	}

	if len(file.Coupons) > 0 {
		catalog.ExampleCoupons = catalog.ExampleCoupons[:0:0]
		for _, c := range file.Coupons {
			catalog.ExampleCoupons = append(catalog.ExampleCoupons, types.ExampleCoupon(c))
		}
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (r resourceBlock) toTable() (*types.TierTable, error) {
	kind, ok := types.ParseResourceKind(r.Kind)
	if !ok {
		return nil, apperrors.Newf(apperrors.TypeConfig, "unknown resource kind %q", r.Kind)
	}

	table := &types.TierTable{
		Kind: kind,
		Unit: r.Unit,
		Min:  r.Min,
		Max:  r.Max,
	}

	previous := 0.0
	for i, t := range r.Tiers {
		if t.UpTo == nil {
			table.Tiers = append(table.Tiers, types.Tier{UnitRate: t.Rate})
			continue
		}
		if *t.UpTo <= previous {
			return nil, apperrors.Newf(apperrors.TypeConfig,
				"%s tier %d: up_to %v must exceed %v", kind, i+1, *t.UpTo, previous)
		}
		table.Tiers = append(table.Tiers, types.Tier{Capacity: *t.UpTo - previous, UnitRate: t.Rate})
		previous = *t.UpTo
	}
	return table, nil
}
