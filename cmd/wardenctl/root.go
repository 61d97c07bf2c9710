package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "wardenctl",
	Short: "Warden - web application firewall gateway",
	Long: `Warden is an open-source web application firewall gateway. It sits in
front of an origin as a reverse proxy and drives a configurable rules
engine over every request and response.

It provides:
  - Header inspection and rewriting in both directions
  - Streaming body inspection with in-flight byte-range edits
  - Synthetic error responses for blocked transactions
  - Cryptographic evidence generation for audit trails
  - Client rate limits and request budgets`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "warden.yaml", "gateway config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
