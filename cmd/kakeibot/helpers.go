package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/kakei/kakeibot/internal/config"
	"github.com/kakei/kakeibot/internal/identity"
	"github.com/kakei/kakeibot/internal/service"
	"github.com/kakei/kakeibot/internal/storage"
)

// loadSettings assembles and validates the process configuration.
func loadSettings() (config.Settings, error) {
	settings := config.FromViper(viper.GetViper())
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context, settings config.Settings) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initNormalizer builds the identity normalizer from the configured
// secret.
func initNormalizer(settings config.Settings) (*identity.Normalizer, error) {
	normalizer, err := identity.NewNormalizer(settings.IdentitySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity normalizer: %w", err)
	}
	return normalizer, nil
}
