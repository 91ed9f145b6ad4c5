// Package audit emits structured decision events: every ingestion,
// dedup hit, rate-limit block, and correction application leaves a
// record.
package audit

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names a recorded decision.
type EventType string

// Audit event types.
const (
	TypeIngested           EventType = "ingested"
	TypeDuplicateHit       EventType = "duplicate_hit"
	TypeRateLimited        EventType = "rate_limited"
	TypeClassifierFallback EventType = "classifier_fallback"
	TypeCorrectionApplied  EventType = "correction_applied"
	TypeRuleUpdated        EventType = "rule_updated"
	TypeNeedsClarification EventType = "needs_clarification"
	TypeInvalidMessage     EventType = "invalid_message"
	TypeJobPanic           EventType = "job_panic"
)

// Event is one audit record.
type Event struct {
	At      time.Time
	Fields  map[string]any
	Type    EventType
	UserID  string
	EventID string
}

// Sink receives audit events. Implementations must be safe for
// concurrent use by pipeline workers.
type Sink interface {
	Emit(event Event)
}

// LogSink writes audit events through slog.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink backed by the given logger, or the default
// logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs the event with structured attributes.
func (s *LogSink) Emit(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	attrs := make([]any, 0, 2*(len(event.Fields)+3))
	attrs = append(attrs, "audit_type", string(event.Type))
	if event.UserID != "" {
		attrs = append(attrs, "user_id", event.UserID)
	}
	if event.EventID != "" {
		attrs = append(attrs, "event_id", event.EventID)
	}
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}

	s.logger.Info("audit", attrs...)
}

// NopSink discards all events.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(Event) {}

// Recorder captures events for assertions in tests.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records the event.
func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// CountByType returns how many recorded events have the given type.
func (r *Recorder) CountByType(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
