package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Append-only events ledger",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					occurred_at DATETIME NOT NULL,
					amount INTEGER NOT NULL,
					currency TEXT NOT NULL,
					category TEXT,
					note TEXT NOT NULL DEFAULT '',
					external_message_id TEXT,
					source TEXT NOT NULL,
					idempotency_key TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				// The unique index is the source of truth for
				// first-writer-wins under concurrent redelivery.
				`CREATE UNIQUE INDEX idx_events_user_key ON events(user_id, idempotency_key)`,
				`CREATE INDEX idx_events_user_occurred ON events(user_id, occurred_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Append-only corrections with supersession",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS corrections (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					amount INTEGER,
					category TEXT,
					note TEXT,
					reason TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT 1,
					superseded_by TEXT,
					created_at DATETIME NOT NULL,
					superseded_at DATETIME,
					FOREIGN KEY (event_id) REFERENCES events(id)
				)`,
				`CREATE INDEX idx_corrections_event ON corrections(event_id)`,
				`CREATE INDEX idx_corrections_event_active ON corrections(event_id, active)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Standing rules with specificity ordering",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					name TEXT NOT NULL,
					merchant_pattern TEXT NOT NULL DEFAULT '',
					is_regex BOOLEAN NOT NULL DEFAULT 0,
					category_equals TEXT,
					set_amount INTEGER,
					set_category TEXT,
					set_note TEXT,
					specificity INTEGER NOT NULL DEFAULT 0,
					active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_rules_user_active ON rules(user_id, active)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("Applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		current = m.Version
	}

	if current != ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d does not match expected %d", current, ExpectedSchemaVersion)
	}

	return nil
}
