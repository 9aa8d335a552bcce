package main

import (
	"github.com/spf13/cobra"

	"github.com/aradsms/bulk_export/internal/platform/database"
)

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the export_jobs schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appLogger.Info("Applying migrations", "source", cfg.ExportMigrationsPath)
			if err := database.MigrateUp(cfg.ExportMigrationsPath, cfg.PostgresDSN); err != nil {
				return err
			}
			appLogger.Info("Migrations applied")
			return nil
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appLogger.Warn("Rolling back one migration", "source", cfg.ExportMigrationsPath)
			if err := database.MigrateDown(cfg.ExportMigrationsPath, cfg.PostgresDSN); err != nil {
				return err
			}
			appLogger.Info("Migration rolled back")
			return nil
		},
	}
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
