// Package main provides the qagate binary: the HTTP server plus local
// commands that operate directly on the configured database.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	configPath string
	outputFlag = outputTable
	actorFlag  string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qagate",
		Short: "QA artifact revisions and release gating",
		Long: `qagate manages versioned QA artifacts (test cases, scenarios and
scenario lists) and gates release approval on coverage, results, bugs,
approvals and waivers.

"qagate serve" runs the HTTP API. The remaining commands open the
configured database directly.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the config file (env: QAGATE_*)")
	rootCmd.PersistentFlags().VarP(&outputFlag, "output", "o", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Identity recorded on changes (default: $USER)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newGateCmd())
	rootCmd.AddCommand(newReleaseCmd())
	rootCmd.AddCommand(newWaiverCmd())
	rootCmd.AddCommand(newRevisionCmd())
	rootCmd.AddCommand(newHealthcheckCmd())
	return rootCmd
}

// actor returns the identity for changes made from the CLI.
func actor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
