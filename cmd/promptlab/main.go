// Package main provides the promptlab CLI for testing prompt variants
// across LLM providers with LLM-as-judge evaluation.
//
// # Basic Usage
//
// Scaffold an experiment, then run it:
//
//	promptlab init experiments/summarization
//	promptlab run experiments/summarization --all
//
// Inspect the outcome:
//
//	promptlab results experiments/summarization/control
//	promptlab compare experiments/summarization
//	promptlab show experiments/summarization/control --input sample
//
// # Environment Variables
//
// API keys are read from the environment (a .env file is loaded when
// present): OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY. An
// experiment's key_refs frontmatter can point providers at different
// variables.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
})

func main() {
	// A missing .env is fine; keys may come from the environment directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "promptlab",
		Short:         "Test prompt variants across LLM providers with LLM-as-judge evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		buildRunCmd(),
		buildResultsCmd(),
		buildCompareCmd(),
		buildShowCmd(),
		buildCleanCmd(),
		buildCacheCmd(),
		buildInitCmd(),
	)

	if err := root.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
