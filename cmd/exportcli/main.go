// Package main provides the entry point for the export analytics CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medstream-labs/export-analytics-cli/cmd/exportcli/commands"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "exportcli",
		Short: "Patient event analytics over healthcare export files",
		Long: "exportcli resolves a healthcare export into its CSV files, streams them\n" +
			"through a constant-memory counting pipeline, and prints per-patient event\n" +
			"counts as JSON on stdout. All diagnostics go to stderr.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "exportcli %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
