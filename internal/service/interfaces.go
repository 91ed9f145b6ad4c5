// Package service defines the interfaces between kakeibot components.
package service

import (
	"context"
	"time"

	"github.com/kakei/kakeibot/internal/model"
)

// EventWriter is the write side of the ingestion log. Only the
// processing pipeline writes raw events.
type EventWriter interface {
	InsertEvent(ctx context.Context, event *model.RawEvent) (*model.RawEvent, bool, error)
}

// EventReader is the read side of the ingestion log.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*model.RawEvent, error)
	ListEvents(ctx context.Context, userID string, from, to time.Time) ([]model.RawEvent, error)
}

// OverlayReader exposes corrections and rules to the precedence engine,
// which owns no stored state of its own.
type OverlayReader interface {
	GetActiveCorrection(ctx context.Context, eventID string) (*model.Correction, error)
	GetActiveRules(ctx context.Context, userID string) ([]model.Rule, error)
	OverlayVersion(userID string) uint64
}

// OverlayWriter is the write side of the correction/rule store. Only
// explicit user action drives these writes; they never touch raw events.
type OverlayWriter interface {
	ApplyCorrection(ctx context.Context, correction *model.Correction) error
	ListCorrections(ctx context.Context, eventID string) ([]model.Correction, error)
	CreateRule(ctx context.Context, rule *model.Rule) error
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	SetRuleActive(ctx context.Context, id, userID string, active bool) error
	ListRules(ctx context.Context, userID string) ([]model.Rule, error)
}

// Compactor is the administrative retention surface, the only path
// that ever deletes ledger rows.
type Compactor interface {
	CountEventsBefore(ctx context.Context, before time.Time) (int64, error)
	CompactEvents(ctx context.Context, before time.Time, batchSize int, progress func(deleted int64)) (int64, error)
}

// Storage aggregates the full persistence surface.
type Storage interface {
	EventWriter
	EventReader
	OverlayReader
	OverlayWriter
	Compactor
	Migrate(ctx context.Context) error
	Close() error
}
