// Package cmd defines the chidori command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chidori",
	Short: "chidori - a tool-augmented RAG agent service",
	Long: `chidori is a retrieval-augmented chat agent service.

It serves an HTTP API that routes messages to a calculator tool, a
knowledge-base retrieval pipeline, or the language model directly, and
ships an index command that ingests documents into the knowledge base.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
