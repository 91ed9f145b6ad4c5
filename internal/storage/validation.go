package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrEmptyCorrection = errors.New("correction overrides no fields")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateEvent validates a raw event before it enters the ledger.
func validateEvent(event *model.RawEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if event.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidEvent)
	}
	if event.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidEvent)
	}
	if event.IdempotencyKey == "" {
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidEvent)
	}
	if event.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidEvent)
	}
	if event.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	if !model.ValidAmount(event.Amount) {
		return fmt.Errorf("%w: amount %d", common.ErrInvalidAmount, event.Amount)
	}
	switch event.Source {
	case model.SourceClassifier, model.SourceParser, model.SourceManual:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEvent, event.Source)
	}
	return nil
}

// validateCorrection validates a correction before it is applied.
func validateCorrection(correction *model.Correction) error {
	if correction == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if err := validateString(correction.EventID, "eventID"); err != nil {
		return err
	}
	if err := validateString(correction.UserID, "userID"); err != nil {
		return err
	}
	if correction.Empty() {
		return ErrEmptyCorrection
	}
	if correction.Amount != nil && !model.ValidAmount(*correction.Amount) {
		return fmt.Errorf("%w: amount %d", common.ErrInvalidAmount, *correction.Amount)
	}
	return nil
}

// validateRule validates a rule before creation.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(rule.Name, "name"); err != nil {
		return err
	}
	if !rule.HasPredicate() {
		return fmt.Errorf("%w: rule would match every event", ErrInvalidRule)
	}
	if !rule.HasOverwrite() {
		return fmt.Errorf("%w: rule overwrites no fields", ErrInvalidRule)
	}
	if rule.Specificity < 0 {
		return fmt.Errorf("%w: negative specificity", ErrInvalidRule)
	}
	if rule.SetAmount != nil && !model.ValidAmount(*rule.SetAmount) {
		return fmt.Errorf("%w: amount %d", common.ErrInvalidAmount, *rule.SetAmount)
	}
	if rule.IsRegex {
		if _, err := regexp.Compile(rule.MerchantPattern); err != nil {
			return fmt.Errorf("%w: bad pattern: %v", ErrInvalidRule, err)
		}
	}
	return nil
}
