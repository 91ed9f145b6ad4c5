// Package model defines the core data structures for the kakeibot application.
package model

import (
	"time"
)

// EventSource identifies which path produced a raw event.
type EventSource string

// Event source constants.
const (
	SourceClassifier EventSource = "classifier"
	SourceParser     EventSource = "parser"
	SourceManual     EventSource = "manual"
)

// MaxAmount is the sanity ceiling for a single event amount, in minor units.
const MaxAmount int64 = 100_000_000

// RawEvent is an immutable ledger record. Once written it is never
// updated or deleted outside of administrative compaction; all
// reinterpretation happens through corrections and rules at read time.
type RawEvent struct {
	OccurredAt        time.Time   `json:"occurred_at"`
	CreatedAt         time.Time   `json:"created_at"`
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Currency          string      `json:"currency"`
	Category          string      `json:"category,omitempty"` // empty when the source was uncertain
	Note              string      `json:"note"`
	ExternalMessageID string      `json:"external_message_id,omitempty"`
	Source            EventSource `json:"source"`
	IdempotencyKey    string      `json:"idempotency_key"`
	Amount            int64       `json:"amount"` // minor units, never floating point
}

// ValidAmount reports whether an amount is inside the accepted range.
func ValidAmount(amount int64) bool {
	return amount > 0 && amount <= MaxAmount
}
