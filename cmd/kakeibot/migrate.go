package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kakei/kakeibot/internal/config"
	"github.com/kakei/kakeibot/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Migrations are additive and idempotent; running this against an
up-to-date database is a no-op.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	// Migration only needs the database; no identity secret required.
	settings := config.FromViper(viper.GetViper())

	slog.Info("Running database migrations",
		"database", settings.DBPath,
		"target_version", storage.ExpectedSchemaVersion)

	store, err := initStorage(cmd.Context(), settings)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	slog.Info("Database migrations completed successfully")
	return nil
}
