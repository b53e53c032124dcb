package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "pocket",
	Short: "Personal budgeting ledger",
	Long:  "Pocket keeps a hierarchy of monthly, weekly and daily budgets and records expenses and gains against them.",
	RunE:  runServe,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "./config/application.yaml", "Path to the configuration file")
}
