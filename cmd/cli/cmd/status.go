package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"usage-billing/internal/config"
)

var statusFormat string

// statusCmd reads the payment status of a checkout session
var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the payment status of a checkout session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := newOrchestrator(config.Get(), nil)
		if err != nil {
			return err
		}

		w := newWriter(cmd)
		spinner := w.NewSpinner("looking up " + args[0])
		spinner.Start()
		status, err := orch.PaymentStatus(context.Background(), args[0])
		spinner.Stop(err == nil)
		if err != nil {
			return err
		}

		if statusFormat == "json" {
			return writeJSON(cmd, status)
		}
		w.NewPaymentStatusView(status).Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "cli", "output format (cli, json)")
}
