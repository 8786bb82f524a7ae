package main

import (
	"github.com/spf13/cobra"
)

func buildRunCmd(configPath *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "run [text...]",
		Short: "Run a single request and print the Response as JSON",
		Long: `Run reads a request from the positional arguments (joined with spaces) or,
if none are given, from stdin. It classifies the input, dispatches it to
the matching handler, and prints the resulting Response as a single JSON
object on stdout.`,
		Example: `  agent run "what does this repo do?"
  echo "/status" | agent run
  agent run --session sess-123 "continue the refactor"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, *configPath, sessionID, args)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Existing session ID to continue (a new session is created if omitted)")
	return cmd
}

func buildStreamCmd(configPath *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "stream [text...]",
		Short: "Run a single request, emitting one JSON object per stream chunk",
		Long: `Stream behaves like run but prints one JSON object per line as the
dispatcher moves through classification and its matched handler: a
classification-start/end pair, a processing-start, one or more processing
chunks, then a single completion or error chunk.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, *configPath, sessionID, args)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Existing session ID to continue (a new session is created if omitted)")
	return cmd
}

func buildHealthCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print component health as JSON",
		Long: `Health reports the Tool Registry's current population, the Memory
Store's session/event counts, and whether the configured Model Provider
answers a minimal request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, *configPath)
		},
	}
	return cmd
}
