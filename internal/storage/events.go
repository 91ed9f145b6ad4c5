package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

// InsertEvent appends a raw event to the ledger. The unique index on
// (user_id, idempotency_key) is the source of truth for duplicates:
// when a row with the same key already exists the existing row is
// returned with created=false and no side effects, which is the
// idempotency contract required under at-least-once redelivery.
func (s *SQLiteStorage) InsertEvent(ctx context.Context, event *model.RawEvent) (*model.RawEvent, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validateEvent(event); err != nil {
		return nil, false, err
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (
			id, user_id, occurred_at, amount, currency, category,
			note, external_message_id, source, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.UserID, event.OccurredAt, event.Amount, event.Currency,
		nullString(event.Category), event.Note, nullString(event.ExternalMessageID),
		string(event.Source), event.IdempotencyKey, event.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return event, true, nil
	}

	// Lost the race or a redelivery: return the winner's row.
	existing, err := s.getEventByKey(ctx, event.UserID, event.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing event after conflict: %w", err)
	}
	return existing, false, nil
}

// GetEvent retrieves an event by id.
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, occurred_at, amount, currency, category,
			note, external_message_id, source, idempotency_key, created_at
		FROM events WHERE id = ?
	`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListEvents returns a user's events within [from, to], oldest first.
func (s *SQLiteStorage) ListEvents(ctx context.Context, userID string, from, to time.Time) ([]model.RawEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", common.ErrInvalidConfig)
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, occurred_at, amount, currency, category,
			note, external_message_id, source, idempotency_key, created_at
		FROM events
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.RawEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// CountEventsBefore returns how many events occurred before the cutoff.
func (s *SQLiteStorage) CountEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE occurred_at < ?", before).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CompactEvents removes events older than the cutoff along with their
// corrections. This is the only path that ever deletes ledger rows; it
// exists solely for explicit administrative compaction.
func (s *SQLiteStorage) CompactEvents(ctx context.Context, before time.Time, batchSize int, progress func(deleted int64)) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		deleted, err := s.compactBatch(ctx, before, batchSize)
		if err != nil {
			return total, err
		}
		if deleted == 0 {
			return total, nil
		}

		total += deleted
		if progress != nil {
			progress(deleted)
		}
	}
}

func (s *SQLiteStorage) compactBatch(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin compaction batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM corrections WHERE event_id IN (
			SELECT id FROM events WHERE occurred_at < ? LIMIT ?
		)
	`, before, batchSize); err != nil {
		return 0, fmt.Errorf("failed to delete corrections in batch: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM events WHERE id IN (
			SELECT id FROM events WHERE occurred_at < ? LIMIT ?
		)
	`, before, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events in batch: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit compaction batch: %w", err)
	}
	return deleted, nil
}

func (s *SQLiteStorage) getEventByKey(ctx context.Context, userID, key string) (*model.RawEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, occurred_at, amount, currency, category,
			note, external_message_id, source, idempotency_key, created_at
		FROM events WHERE user_id = ? AND idempotency_key = ?
	`, userID, key)
	return scanEvent(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.RawEvent, error) {
	var event model.RawEvent
	var category, externalID sql.NullString
	var source string

	err := row.Scan(
		&event.ID, &event.UserID, &event.OccurredAt, &event.Amount, &event.Currency,
		&category, &event.Note, &externalID, &source, &event.IdempotencyKey, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Category = category.String
	event.ExternalMessageID = externalID.String
	event.Source = model.EventSource(source)
	return &event, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
