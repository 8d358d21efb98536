package commands

import (
	"github.com/spf13/cobra"

	"enforcement_scraper/internal/storage/postgres"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies pending database migrations.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := connectDB(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		version, err := postgres.MigrationVersion(ctx, db)
		if err != nil {
			return err
		}
		logger.Info("database migrated", "version", version)
		return nil
	},
}
