// monitorctl is a CLI tool for inspecting monitored clusters.
//
// Installation:
//
//	go build -o monitorctl ./cmd/monitorctl
//	mv monitorctl /usr/local/bin/
//
// Usage:
//
//	monitorctl check
//	monitorctl check --cluster prod -n payments
//	monitorctl info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	outputFmt  string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "monitorctl",
		Short: "Inspect pod health across monitored clusters",
		Long: `monitorctl is a CLI companion to the monitor daemon.

It reads the same YAML configuration and runs one-shot detection
passes directly against the configured clusters, without state
tracking or alerting.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "setup.yaml", "Path to the YAML configuration file")

	// Add subcommands
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(infoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
