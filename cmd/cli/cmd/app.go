package cmd

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"usage-billing/adapters/gateway"
	"usage-billing/core/checkout"
	"usage-billing/core/pricing"
	"usage-billing/core/types"
	"usage-billing/internal/config"
	apperrors "usage-billing/internal/errors"
	"usage-billing/internal/logging"
	"usage-billing/internal/observability"
)

// loadCatalog returns the validated catalog: the configured file, or the
// built-in catalog when no file is set
func loadCatalog(cfg *config.Config) (*pricing.Catalog, error) {
	catalog, err := pricing.LoadCatalog(cfg.Pricing.CatalogPath)
	if err != nil {
		return nil, err
	}
	if cfg.Pricing.CatalogPath != "" {
		logging.Info("loaded pricing catalog",
			zap.String("path", cfg.Pricing.CatalogPath),
			zap.String("currency", string(catalog.Currency)),
		)
	}
	return catalog, nil
}

// newOrchestrator wires the calculator, gateway client and orchestrator from
// cfg. metrics may be nil.
func newOrchestrator(cfg *config.Config, metrics *observability.Metrics) (*checkout.Orchestrator, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	client, err := gateway.New(cfg.Gateway, nil, logging.Named("gateway"))
	if err != nil {
		return nil, err
	}

	return checkout.New(checkout.Deps{
		Calculator: pricing.NewCalculator(catalog),
		Catalog:    catalog,
		Gateway:    client,
		Logger:     logging.Named("checkout"),
		Metrics:    metrics,
	}, cfg.Checkout), nil
}

// parseSelection reads "<kind> <quantity>" and enforces the offered range
func parseSelection(orch *checkout.Orchestrator, args []string) (types.ResourceKind, float64, error) {
	if len(args) != 2 {
		return "", 0, apperrors.Input("expected <kind> <quantity> or --package")
	}
	kind, ok := types.ParseResourceKind(args[0])
	if !ok {
		return "", 0, apperrors.Newf(apperrors.TypeInput, "unknown resource kind %q (tokens, consultationHours, developmentHours)", args[0])
	}
	quantity, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", 0, apperrors.Wrapf(apperrors.TypeInput, err, "invalid quantity %q", args[1])
	}
	table, ok := orch.Table(kind)
	if !ok {
		return "", 0, apperrors.NotFound("tier table", string(kind))
	}
	if !table.InRange(quantity) {
		return "", 0, apperrors.Newf(apperrors.TypeInvalidQuantity,
			"%s quantity must be between %v and %v, got %v", kind, table.Min, table.Max, quantity)
	}
	return kind, quantity, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
