// Package cmd provides the CLI commands for usage-billing.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"usage-billing/core/ui"
	"usage-billing/internal/config"
	"usage-billing/internal/logging"
)

const version = "0.1.0"

var (
	cfgFile string
	verbose bool
	noColor bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "usage-billing",
	Short: "Price metered usage and run hosted checkout",
	Long: `usage-billing prices metered resources with marginal tiered rates and
hands purchases to a hosted payment checkout.

Examples:
  usage-billing quote tokens 15
  usage-billing quote consultationHours 12 --coupon WELCOME10
  usage-billing checkout --package dev-sprint
  usage-billing status cs_test_a1b2c3
  usage-billing serve`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (json, yaml, toml or hcl)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

func newWriter(cmd *cobra.Command) *ui.Writer {
	w := ui.NewWriter(cmd.OutOrStdout(), noColor)
	if verbose {
		w.SetVerbosity(2)
	}
	return w
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "usage-billing version %s\n", version)
	},
}

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.Get()
		if cfg.Gateway.APIKey != "" {
			cfg.Gateway.APIKey = "********"
		}
		return writeJSON(cmd, cfg)
	},
}
