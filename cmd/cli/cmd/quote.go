// Package cmd - quote command
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"usage-billing/core/pricing"
	"usage-billing/core/types"
	"usage-billing/internal/config"
)

var (
	quoteFormat  string
	quotePackage string
	quoteCoupon  string
)

// quoteCmd prices a metered quantity or a package
var quoteCmd = &cobra.Command{
	Use:   "quote [kind] [quantity]",
	Short: "Price a quantity of a metered resource",
	Long: `Price a quantity with marginal tiered rates: each tier's rate applies only to
the units that fall inside that tier.

Kinds: tokens (millions), consultationHours, developmentHours.

Examples:
  usage-billing quote tokens 15
  usage-billing quote consultation_hours 12 --format json
  usage-billing quote --package dev-sprint --coupon WELCOME10`,
	Args: cobra.MaximumNArgs(2),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVarP(&quoteFormat, "format", "f", "cli", "output format (cli, json)")
	quoteCmd.Flags().StringVarP(&quotePackage, "package", "p", "", "price a catalog package instead of a quantity")
	quoteCmd.Flags().StringVar(&quoteCoupon, "coupon", "", "show the price after a coupon (validated remotely)")
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	orch, err := newOrchestrator(cfg, nil)
	if err != nil {
		return err
	}

	var (
		quote       *types.PricingQuote
		description string
	)
	if quotePackage != "" {
		pkg, err := orch.Catalog().Package(quotePackage)
		if err != nil {
			return err
		}
		if quote, err = orch.Quote(pkg.Kind, pkg.Quantity); err != nil {
			return err
		}
		description = pkg.Description
	} else {
		kind, quantity, err := parseSelection(orch, args)
		if err != nil {
			return err
		}
		if quote, err = orch.Quote(kind, quantity); err != nil {
			return err
		}
		description = pricing.Describe(kind, quantity)
	}

	var coupon *types.CouponResult
	if quoteCoupon != "" {
		coupon, err = orch.ValidateCoupon(context.Background(), quoteCoupon)
		if err != nil {
			return err
		}
	}

	if quoteFormat == "json" {
		out := map[string]interface{}{
			"description": description,
			"currency":    orch.Catalog().Currency,
			"quote":       quote,
		}
		if coupon != nil {
			out["coupon"] = coupon
			if coupon.Valid {
				out["display_total"] = pricing.DisplayPrice(quote.TotalPrice, coupon.DiscountPercent).StringFixed(2)
			}
		}
		return writeJSON(cmd, out)
	}

	w := newWriter(cmd)
	summary := w.NewQuoteSummary(quote, description, orch.Catalog().Currency)
	summary.Coupon = coupon
	summary.Render()
	if coupon != nil && !coupon.Valid {
		w.Warning("%s: %s", coupon.Code, coupon.Message)
	}
	return nil
}
