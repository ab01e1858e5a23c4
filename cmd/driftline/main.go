package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "driftline",
	Short:   "Local-first journaling engine with signal extraction",
	Version: version,
	Long: `driftline watches your journal for forward-looking signals,
tracks goals and intentions through their lifecycle, and nudges you
toward life domains you have stopped writing about.

Everything runs locally: entries live in SQLite, extraction runs
against a local Ollama model, and nothing leaves your machine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(signalsCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(engagementCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
