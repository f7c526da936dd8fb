// Package main provides the entry point for the content pipeline agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipeline_agent",
	Short: "Content pipeline agent",
	Long:  "Pipeline agent watches a document source, parses and proofreads drafts through review gates, and publishes approved content to a CMS through browser automation.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
