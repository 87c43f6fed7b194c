package cmd

import (
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "edavki-repairer",
	Short: "Repair and resubmit rejected fiscal receipts to eDavki",
	Long: `eDavki Repairer re-signs, re-numbers, and resubmits fiscal receipt
requests that the tax authority rejected, pairing them with customer VAT
numbers from the POS database and recording outcomes back to it.

Commands:
  repair    run the full repair pipeline against the configured POS database
  extract   recover original invoice requests from POS log files

Examples:
  # Repair everything in the configured date range
  edavki-repairer repair --config edavki-repairer.yaml

  # Repair only two specific transactions
  edavki-repairer repair -includeOnly a1b2,c3d4

  # Mine request JSON out of a log directory
  edavki-repairer extract ./logs ./extracted`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "edavki-repairer.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}
