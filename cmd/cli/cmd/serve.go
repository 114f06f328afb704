// Package cmd - serve command
package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpadapter "usage-billing/adapters/http"
	"usage-billing/internal/config"
	"usage-billing/internal/logging"
	"usage-billing/internal/observability"
)

var (
	serveAddress         string
	serveShutdownTimeout time.Duration
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pricing and checkout HTTP API",
	Long: `Run the HTTP API used by the storefront: quotes, coupon validation,
checkout session creation and payment status.

Configuration comes from --config and USAGE_BILLING_* environment variables,
e.g. USAGE_BILLING_GATEWAY_BASE_URL and USAGE_BILLING_SERVER_ADDRESS.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddress, "addr", "", "listen address (overrides server.address)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	defer logging.Sync()

	cfg := config.Get()
	serverCfg := cfg.Server
	if serveAddress != "" {
		serverCfg.Address = serveAddress
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	orch, err := newOrchestrator(cfg, metrics)
	if err != nil {
		return err
	}
	adapter := httpadapter.New(orch, &serverCfg, logging.Named("http"), metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(adapter.Start)
	g.Go(func() error {
		<-ctx.Done()
		logging.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		return adapter.Shutdown(shutdownCtx)
	})

	logging.Info("usage-billing api starting",
		zap.String("version", version),
		zap.String("address", serverCfg.Address),
		zap.String("gateway", cfg.Gateway.BaseURL),
	)
	if err := g.Wait(); err != nil {
		logging.Error("server stopped", zap.Error(err))
		return err
	}
	logging.Info("server stopped")
	return nil
}
