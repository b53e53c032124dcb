package cmd

import (
	"github.com/pocket/pocket/internal/config"
	"github.com/pocket/pocket/internal/database"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := database.Migrate(cfg.Database); err != nil {
		return err
	}
	log.Info("Database is up to date")
	return nil
}
