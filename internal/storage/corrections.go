package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

// ApplyCorrection inserts a new active correction for an event and
// supersedes any prior active one in the same transaction. History is
// never deleted: the superseded correction keeps its row, flagged with
// the id of its successor.
func (s *SQLiteStorage) ApplyCorrection(ctx context.Context, correction *model.Correction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCorrection(correction); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The event must exist and belong to the correcting user.
	var ownerID string
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM events WHERE id = ?", correction.EventID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrEventNotFound
		}
		return fmt.Errorf("failed to verify event: %w", err)
	}
	if ownerID != correction.UserID {
		return common.ErrNotOwner
	}

	if correction.ID == "" {
		correction.ID = ksuid.New().String()
	}
	now := time.Now().UTC()
	correction.CreatedAt = now
	correction.Active = true

	if _, err := tx.ExecContext(ctx, `
		UPDATE corrections
		SET active = 0, superseded_at = ?, superseded_by = ?
		WHERE event_id = ? AND active = 1
	`, now, correction.ID, correction.EventID); err != nil {
		return fmt.Errorf("failed to supersede prior correction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO corrections (
			id, event_id, user_id, amount, category, note,
			reason, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
	`,
		correction.ID, correction.EventID, correction.UserID,
		correction.Amount, correction.Category, correction.Note,
		correction.Reason, correction.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert correction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit correction: %w", err)
	}

	s.versions.bump(correction.UserID)
	return nil
}

// GetActiveCorrection returns the single active correction for an
// event, or nil when the event has none. Absence is not an error:
// resolution simply falls through to the next layer.
func (s *SQLiteStorage) GetActiveCorrection(ctx context.Context, eventID string) (*model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(eventID, "eventID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, user_id, amount, category, note,
			reason, active, superseded_by, created_at, superseded_at
		FROM corrections
		WHERE event_id = ? AND active = 1
	`, eventID)

	correction, err := scanCorrection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active correction: %w", err)
	}
	return correction, nil
}

// ListCorrections returns every correction ever issued for an event,
// newest first, including superseded ones.
func (s *SQLiteStorage) ListCorrections(ctx context.Context, eventID string) ([]model.Correction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(eventID, "eventID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, user_id, amount, category, note,
			reason, active, superseded_by, created_at, superseded_at
		FROM corrections
		WHERE event_id = ?
		ORDER BY created_at DESC, id DESC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var corrections []model.Correction
	for rows.Next() {
		correction, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		corrections = append(corrections, *correction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corrections: %w", err)
	}

	return corrections, nil
}

func scanCorrection(row rowScanner) (*model.Correction, error) {
	var c model.Correction
	var amount sql.NullInt64
	var category, note, supersededBy sql.NullString
	var supersededAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.EventID, &c.UserID, &amount, &category, &note,
		&c.Reason, &c.Active, &supersededBy, &c.CreatedAt, &supersededAt,
	)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		c.Amount = &amount.Int64
	}
	if category.Valid {
		c.Category = &category.String
	}
	if note.Valid {
		c.Note = &note.String
	}
	c.SupersededBy = supersededBy.String
	if supersededAt.Valid {
		t := supersededAt.Time
		c.SupersededAt = &t
	}
	return &c, nil
}
