package cmd

import (
	"context"
	"fmt"

	"github.com/pocket/pocket/internal/app"
	"github.com/pocket/pocket/internal/config"
	"github.com/pocket/pocket/internal/database"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the database supports transactions and print the ledger mode that would be used",
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	available := database.DetectTransactions(ctx, db)
	fmt.Printf("  Transactions available: %t\n", available)

	mode, err := app.SelectLedgerMode(cfg, available)
	if err != nil {
		fmt.Printf("  Ledger mode:            refused (%v)\n", err)
		return err
	}
	fmt.Printf("  Ledger mode:            %s\n", mode)
	return nil
}
