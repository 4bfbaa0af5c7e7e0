package main

import (
	"github.com/infrachain/server/internal/database"
	"github.com/infrachain/server/internal/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)

		logger.Info("Database migrated (driver: %s)", cfg.Database.Driver)
		return nil
	},
}
