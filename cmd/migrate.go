package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankabe/policyfaq/db"
	"github.com/ankabe/policyfaq/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations.

Only the PostgreSQL settings are needed; serve runs migrations on startup
anyway, so this command exists for deploy pipelines that migrate separately.`,
	RunE: func(*cobra.Command, []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	// Deliberately skips full validation: migrations need no API key.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
