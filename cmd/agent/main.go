// Package main provides the CLI entry point for the coding-assistant agent
// runtime: "agent run" (single request, prints a Response as JSON), "agent
// stream" (emits one JSON object per stream chunk), and "agent health"
// (prints component health), per spec.md §6.
//
// Grounded on the teacher's cmd/nexus: buildRootCmd() assembled separately
// from main() so the command tree stays testable, and cmd/demo/main.go's
// build-everything-bottom-up wiring style (here split out into wiring.go
// since this runtime has far more components than the teacher's demo).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agent:", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "Coding-assistant agent runtime",
		Long: `agent classifies free-form input and routes it to a built-in command, a
conversational model prompt, or a multi-step tool-using workflow, under
strict time and safety bounds.`,
		// SilenceUsage prevents printing usage on every error; spec.md §6's
		// exit codes are the error-reporting contract, not a usage dump.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (defaults built in if omitted)")

	rootCmd.AddCommand(
		buildRunCmd(&configPath),
		buildStreamCmd(&configPath),
		buildHealthCmd(&configPath),
	)
	return rootCmd
}
