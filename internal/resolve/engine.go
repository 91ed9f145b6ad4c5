// Package resolve computes the effective view of raw events by
// layering overlays in deterministic precedence order: the active
// correction for the exact event wins over the best matching standing
// rule, which wins over the raw fields.
//
// Resolution is a pure, replayable projection. Nothing here writes
// stored state; editing a rule retroactively reinterprets history on
// the next read, without any rewrite pass over the ledger.
package resolve

import (
	"context"
	"fmt"
	"sync"

	"github.com/kakei/kakeibot/internal/model"
	"github.com/kakei/kakeibot/internal/service"
)

// maxCacheEntries bounds the resolution cache. Stale entries can never
// be served (the overlay version is part of the key); the bound only
// caps memory.
const maxCacheEntries = 4096

// Engine resolves effective views.
type Engine struct {
	store service.OverlayReader
	cache map[cacheKey]model.EffectiveView
	mu    sync.Mutex
}

type cacheKey struct {
	eventID string
	version uint64
}

// NewEngine creates a resolution engine over the given overlay store.
func NewEngine(store service.OverlayReader) *Engine {
	return &Engine{
		store: store,
		cache: make(map[cacheKey]model.EffectiveView),
	}
}

// Resolve computes the effective view of one event.
func (e *Engine) Resolve(ctx context.Context, event model.RawEvent) (model.EffectiveView, error) {
	version := e.store.OverlayVersion(event.UserID)
	key := cacheKey{eventID: event.ID, version: version}

	e.mu.Lock()
	cached, ok := e.cache[key]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	correction, err := e.store.GetActiveCorrection(ctx, event.ID)
	if err != nil {
		return model.EffectiveView{}, fmt.Errorf("failed to load correction: %w", err)
	}

	rules, err := e.store.GetActiveRules(ctx, event.UserID)
	if err != nil {
		return model.EffectiveView{}, fmt.Errorf("failed to load rules: %w", err)
	}

	view := layer(event, correction, newMatcher(rules).bestMatch(event))

	e.mu.Lock()
	if len(e.cache) >= maxCacheEntries {
		e.cache = make(map[cacheKey]model.EffectiveView)
	}
	e.cache[key] = view
	e.mu.Unlock()

	return view, nil
}

// ResolveAll resolves a batch of events. Each event goes through the
// cache individually, so overlay loads are skipped for events whose
// view is already current.
func (e *Engine) ResolveAll(ctx context.Context, events []model.RawEvent) ([]model.EffectiveView, error) {
	views := make([]model.EffectiveView, 0, len(events))
	for _, event := range events {
		view, err := e.Resolve(ctx, event)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// layer applies field-level precedence: correction > rule > raw. A
// layer that does not set a field leaves it at the next-lower value.
func layer(event model.RawEvent, correction *model.Correction, rule *model.Rule) model.EffectiveView {
	view := model.EffectiveView{
		Event:    event,
		Amount:   event.Amount,
		Category: event.Category,
		Note:     event.Note,
		Audit: model.EffectiveAudit{
			Amount:   model.FieldAudit{Origin: model.OriginRaw},
			Category: model.FieldAudit{Origin: model.OriginRaw},
			Note:     model.FieldAudit{Origin: model.OriginRaw},
		},
	}

	if rule != nil {
		if rule.SetAmount != nil {
			view.Amount = *rule.SetAmount
			view.Audit.Amount = model.FieldAudit{Origin: model.OriginRule, OverlayID: rule.ID}
		}
		if rule.SetCategory != nil {
			view.Category = *rule.SetCategory
			view.Audit.Category = model.FieldAudit{Origin: model.OriginRule, OverlayID: rule.ID}
		}
		if rule.SetNote != nil {
			view.Note = *rule.SetNote
			view.Audit.Note = model.FieldAudit{Origin: model.OriginRule, OverlayID: rule.ID}
		}
	}

	if correction != nil {
		if correction.Amount != nil {
			view.Amount = *correction.Amount
			view.Audit.Amount = model.FieldAudit{Origin: model.OriginCorrection, OverlayID: correction.ID}
		}
		if correction.Category != nil {
			view.Category = *correction.Category
			view.Audit.Category = model.FieldAudit{Origin: model.OriginCorrection, OverlayID: correction.ID}
		}
		if correction.Note != nil {
			view.Note = *correction.Note
			view.Audit.Note = model.FieldAudit{Origin: model.OriginCorrection, OverlayID: correction.ID}
		}
	}

	return view
}
