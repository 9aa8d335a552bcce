package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aradsms/bulk_export/internal/platform/config"
	"github.com/aradsms/bulk_export/internal/platform/logger"
)

const serviceName = "export_service"

var (
	cfg       *config.Config
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Bulk export service",
	Long: `export_service accepts asynchronous FHIR $export requests, records export jobs
and reports their status to polling clients.

Running without a subcommand is the same as "serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(serviceName)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLogger = logger.New(cfg.LogLevel).With("service", serviceName)
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "service", serviceName, "error", err)
		os.Exit(1)
	}
}
