package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"usage-billing/internal/config"
)

var couponFormat string

var couponCmd = &cobra.Command{
	Use:   "coupon",
	Short: "Coupon code operations",
}

var couponValidateCmd = &cobra.Command{
	Use:   "validate <code>",
	Short: "Ask the coupon service whether a code applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := newOrchestrator(config.Get(), nil)
		if err != nil {
			return err
		}

		w := newWriter(cmd)
		spinner := w.NewSpinner("validating " + args[0])
		spinner.Start()
		result, err := orch.ValidateCoupon(context.Background(), args[0])
		spinner.Stop(err == nil)
		if err != nil {
			return err
		}

		if couponFormat == "json" {
			return writeJSON(cmd, result)
		}
		if result.Valid {
			w.Success("%s: %v%% off", result.Code, result.DiscountPercent)
			if result.Description != "" {
				w.Println("  %s", result.Description)
			}
			return nil
		}
		w.Error("%s", result.Message)
		return result.Err()
	},
}

var couponExamplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "List example coupon codes shown to buyers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(config.Get())
		if err != nil {
			return err
		}
		if couponFormat == "json" {
			return writeJSON(cmd, catalog.ExampleCoupons)
		}

		table := newWriter(cmd).NewTable("Code", "Discount", "Description")
		for _, c := range catalog.ExampleCoupons {
			table.AddRow(c.Code, fmt.Sprintf("%v%%", c.DiscountPercent), c.Description)
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(couponCmd)
	couponCmd.AddCommand(couponValidateCmd)
	couponCmd.AddCommand(couponExamplesCmd)
	couponCmd.PersistentFlags().StringVarP(&couponFormat, "format", "f", "cli", "output format (cli, json)")
}
