package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragline",
	Short: "ragline - intent-routed retrieval-augmented answering",
	Long: `ragline routes questions to the right knowledge source, grounds the
answer in retrieved evidence and verifies every citation it emits.

Run "ragline serve" to start the HTTP API, or "ragline ask" for a
one-shot question from the terminal.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
