// Package main is the entry point for the usage-billing CLI.
package main

import (
	"os"

	"usage-billing/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
