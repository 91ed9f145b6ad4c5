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

// CreateRule creates a new standing rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = ksuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (
			id, user_id, name, merchant_pattern, is_regex, category_equals,
			set_amount, set_category, set_note, specificity, active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		rule.ID, rule.UserID, rule.Name, rule.MerchantPattern, rule.IsRegex,
		rule.CategoryEquals, rule.SetAmount, rule.SetCategory, rule.SetNote,
		rule.Specificity, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	s.versions.bump(rule.UserID)
	return nil
}

// GetRule retrieves a rule by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, merchant_pattern, is_regex, category_equals,
			set_amount, set_category, set_note, specificity, active,
			created_at, updated_at
		FROM rules WHERE id = ?
	`, id)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// SetRuleActive flips a rule's active flag. The rule must belong to
// the requesting user.
func (s *SQLiteStorage) SetRuleActive(ctx context.Context, id, userID string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	var ownerID string
	err := s.db.QueryRowContext(ctx, "SELECT user_id FROM rules WHERE id = ?", id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrRuleNotFound
		}
		return fmt.Errorf("failed to verify rule: %w", err)
	}
	if ownerID != userID {
		return common.ErrNotOwner
	}

	_, err = s.db.ExecContext(ctx,
		"UPDATE rules SET active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	s.versions.bump(userID)
	return nil
}

// GetActiveRules retrieves a user's active rules ordered for precedence:
// highest specificity first, ties broken by most recent creation.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, userID string) ([]model.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, user_id, name, merchant_pattern, is_regex, category_equals,
			set_amount, set_category, set_note, specificity, active,
			created_at, updated_at
		FROM rules
		WHERE user_id = ? AND active = 1
		ORDER BY specificity DESC, created_at DESC, id DESC
	`, userID)
}

// ListRules retrieves all of a user's rules, active or not.
func (s *SQLiteStorage) ListRules(ctx context.Context, userID string) ([]model.Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, user_id, name, merchant_pattern, is_regex, category_equals,
			set_amount, set_category, set_note, specificity, active,
			created_at, updated_at
		FROM rules
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query, userID string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var r model.Rule
	var categoryEquals, setCategory, setNote sql.NullString
	var setAmount sql.NullInt64

	err := row.Scan(
		&r.ID, &r.UserID, &r.Name, &r.MerchantPattern, &r.IsRegex, &categoryEquals,
		&setAmount, &setCategory, &setNote, &r.Specificity, &r.Active,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoryEquals.Valid {
		r.CategoryEquals = &categoryEquals.String
	}
	if setAmount.Valid {
		r.SetAmount = &setAmount.Int64
	}
	if setCategory.Valid {
		r.SetCategory = &setCategory.String
	}
	if setNote.Valid {
		r.SetNote = &setNote.String
	}
	return &r, nil
}
