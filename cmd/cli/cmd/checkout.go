// Package cmd - checkout command
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"usage-billing/core/checkout"
	"usage-billing/core/pricing"
	"usage-billing/core/types"
	"usage-billing/core/ui"
	"usage-billing/internal/config"
	apperrors "usage-billing/internal/errors"
)

var (
	checkoutPackage  string
	checkoutPlan     string
	checkoutCoupon   string
	checkoutFormat   string
)

// checkoutCmd creates a hosted checkout session
var checkoutCmd = &cobra.Command{
	Use:   "checkout [kind] [quantity]",
	Short: "Create a hosted checkout session",
	Long: `Price a purchase and create a hosted checkout session for it.

The charged amount is always the undiscounted price; a coupon is validated
first and then handed to the payment provider, which applies the discount.
A failed submission is reported and never retried automatically.

Examples:
  usage-billing checkout tokens 15
  usage-billing checkout --package consult-kickoff --coupon WELCOME10
  usage-billing checkout --plan team-monthly

Charges are made in the catalog currency.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runCheckout,
}

func init() {
	rootCmd.AddCommand(checkoutCmd)

	checkoutCmd.Flags().StringVarP(&checkoutPackage, "package", "p", "", "buy a catalog package")
	checkoutCmd.Flags().StringVar(&checkoutPlan, "plan", "", "subscribe to a catalog plan")
	checkoutCmd.Flags().StringVar(&checkoutCoupon, "coupon", "", "coupon code")
	checkoutCmd.Flags().StringVarP(&checkoutFormat, "format", "f", "cli", "output format (cli, json)")
	checkoutCmd.MarkFlagsMutuallyExclusive("package", "plan")
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Get()
	orch, err := newOrchestrator(cfg, nil)
	if err != nil {
		return err
	}
	w := newWriter(cmd)

	currency := orch.Catalog().Currency

	var session *types.CheckoutSession
	if checkoutPlan != "" {
		session, err = subscribe(ctx, orch, w.NewSpinner("creating subscription checkout"), currency)
	} else {
		flow := orch.NewFlow(currency)
		var quote *types.PricingQuote
		if checkoutPackage != "" {
			quote, err = flow.SelectPackage(checkoutPackage)
		} else {
			var kind types.ResourceKind
			var quantity float64
			if kind, quantity, err = parseSelection(orch, args); err == nil {
				quote, err = flow.Select(kind, quantity)
			}
		}
		if err != nil {
			return err
		}
		w.Debug("%s: %s", pricing.Describe(quote.ResourceKind, quote.RequestedQuantity), pricing.FormatMoney(quote.TotalPrice))

		if checkoutCoupon != "" {
			result, applied, err := flow.ApplyCoupon(ctx, checkoutCoupon)
			if err != nil {
				return err
			}
			if !applied {
				return apperrors.Input("coupon validation was superseded, try again")
			}
			if !result.Valid {
				w.Error("%s: %s", result.Code, result.Message)
				return result.Err()
			}
			if total, ok := flow.DisplayTotal(); ok {
				w.Info("%s applied, you will be charged %s %s after discount", result.Code, total.StringFixed(2), currency)
			}
		}

		spinner := w.NewSpinner("creating checkout session")
		spinner.Start()
		var applied bool
		session, applied, err = flow.Checkout(ctx)
		spinner.Stop(err == nil && applied)
		if err == nil && !applied {
			return apperrors.Input("checkout was superseded, try again")
		}
	}
	if err != nil {
		return err
	}

	if checkoutFormat == "json" {
		return writeJSON(cmd, session)
	}
	w.Success("checkout session %s created", session.SessionID)
	w.Println("  Complete payment at: %s", session.CheckoutURL)
	return nil
}

func subscribe(ctx context.Context, orch *checkout.Orchestrator, spinner *ui.Spinner, currency types.Currency) (*types.CheckoutSession, error) {
	coupon := ""
	if checkoutCoupon != "" {
		result, err := orch.ValidateCoupon(ctx, checkoutCoupon)
		if err != nil {
			return nil, err
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		coupon = result.Code
	}

	req, err := orch.BuildSubscriptionRequest(checkoutPlan, currency, coupon)
	if err != nil {
		return nil, err
	}

	spinner.Start()
	session, err := orch.SubmitCheckout(ctx, req)
	spinner.Stop(err == nil)
	return session, err
}
