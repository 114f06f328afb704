package cmd

import (
	"github.com/spf13/cobra"

	"usage-billing/internal/config"
)

var catalogFormat string

// catalogCmd prints the pricing catalog
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show tier tables, packages and plans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loadCatalog(config.Get())
		if err != nil {
			return err
		}
		if catalogFormat == "json" {
			return writeJSON(cmd, catalog)
		}
		newWriter(cmd).NewCatalogView(catalog).Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVarP(&catalogFormat, "format", "f", "cli", "output format (cli, json)")
}
