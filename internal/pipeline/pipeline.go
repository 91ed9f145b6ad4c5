// Package pipeline implements the asynchronous ingestion pipeline: a
// bounded queue consumed by a fixed worker pool that turns inbound chat
// messages into immutable ledger events.
//
// Workers are independent; jobs for the same user carry no ordering
// guarantee. The idempotency key makes that safe: no interleaving of
// redeliveries can produce a duplicate event.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/kakei/kakeibot/internal/audit"
	"github.com/kakei/kakeibot/internal/classify"
	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/identity"
	"github.com/kakei/kakeibot/internal/model"
	"github.com/kakei/kakeibot/internal/parse"
	"github.com/kakei/kakeibot/internal/ratelimit"
	"github.com/kakei/kakeibot/internal/service"
)

// Config holds pipeline tuning knobs.
type Config struct {
	// Workers is the fixed size of the worker pool.
	Workers int
	// QueueSize bounds the inbound queue; a full queue rejects new jobs.
	QueueSize int
	// ClassifyTimeout is the hard ceiling on one classifier call.
	ClassifyTimeout time.Duration
	// MinConfidence is the floor below which a classifier result is
	// treated as unusable.
	MinConfidence float64
	// Currency is stamped on every ingested event.
	Currency string
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         3,
		QueueSize:       64,
		ClassifyTimeout: classify.DefaultTimeout,
		MinConfidence:   0.6,
		Currency:        "JPY",
	}
}

// Pipeline consumes intake messages and writes raw events.
type Pipeline struct {
	normalizer *identity.Normalizer
	limiter    *ratelimit.Limiter
	classifier classify.Client
	store      service.EventWriter
	sink       audit.Sink
	queue      chan model.IntakeMessage
	cfg        Config
	wg         sync.WaitGroup
	startOnce  sync.Once
	closeOnce  sync.Once
}

// New creates a pipeline, substituting defaults for zero config values.
func New(cfg Config, normalizer *identity.Normalizer, limiter *ratelimit.Limiter, classifier classify.Client, store service.EventWriter, sink audit.Sink) *Pipeline {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = def.ClassifyTimeout
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if sink == nil {
		sink = audit.NopSink{}
	}

	return &Pipeline{
		cfg:        cfg,
		normalizer: normalizer,
		limiter:    limiter,
		classifier: classifier,
		store:      store,
		sink:       sink,
		queue:      make(chan model.IntakeMessage, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when the queue closes
// or the context is canceled.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})
}

// Enqueue submits a message without blocking. When the queue is full
// the job is rejected immediately with ErrQueueFull; the transport's
// own redelivery, keyed by idempotency, is the retry path.
func (p *Pipeline) Enqueue(msg model.IntakeMessage) error {
	select {
	case p.queue <- msg:
		return nil
	default:
		return common.ErrQueueFull
	}
}

// Close stops accepting jobs and waits for in-flight work to drain.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	slog.Debug("Pipeline worker started", "worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, msg)
		}
	}
}

// process handles one message end to end. A panic mid-job is logged
// and the job dropped, never partially ingested or silently retried.
func (p *Pipeline) process(ctx context.Context, msg model.IntakeMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker panic, dropping job",
				"panic", r,
				"external_message_id", msg.ExternalMessageID)
			p.sink.Emit(audit.Event{
				Type:   audit.TypeJobPanic,
				Fields: map[string]any{"panic": r},
			})
		}
	}()

	userID, err := p.normalizer.Normalize(msg.UserHandle)
	if err != nil {
		slog.Warn("Dropping message with invalid identity", "error", err)
		p.sink.Emit(audit.Event{
			Type:   audit.TypeInvalidMessage,
			Fields: map[string]any{"error": err.Error()},
		})
		return
	}

	parentKey := p.parentKey(userID, msg)

	// Fast path: deterministic parse, no classifier, no rate limit.
	result := parse.Parse(msg.Text)
	if result.Confident {
		p.ingestItems(ctx, userID, parentKey, msg, result.Items, model.SourceParser)
		return
	}

	allowed, retryAfter := p.limiter.Allow(userID)
	if !allowed {
		p.sink.Emit(audit.Event{
			Type:   audit.TypeRateLimited,
			UserID: userID,
			Fields: map[string]any{"retry_after": retryAfter.String()},
		})
		p.clarify(userID, msg)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	classified, err := p.classifier.Classify(cctx, classify.Request{Text: msg.Text})
	cancel()
	if err != nil {
		// Classifier trouble is never a user-facing failure; recover
		// locally with the deterministic path.
		slog.Warn("Classifier call failed, falling back", "error", err)
		p.sink.Emit(audit.Event{
			Type:   audit.TypeClassifierFallback,
			UserID: userID,
			Fields: map[string]any{"error": err.Error()},
		})
		p.clarify(userID, msg)
		return
	}

	if !classified.Usable(p.cfg.MinConfidence) {
		// Ambiguity means asking, not guessing.
		p.clarify(userID, msg)
		return
	}

	note := classified.Note
	if note == "" {
		note = msg.Text
	}
	p.ingestItems(ctx, userID, parentKey, msg, []parse.Item{{
		Label:    note,
		Category: classified.Category,
		Amount:   *classified.Amount,
	}}, model.SourceClassifier)
}

func (p *Pipeline) parentKey(userID string, msg model.IntakeMessage) string {
	if msg.ExternalMessageID != "" {
		return model.IngestionKey(userID, msg.ExternalMessageID)
	}
	return model.FallbackIngestionKey(userID, msg.Text, msg.ReceivedAt)
}

func (p *Pipeline) ingestItems(ctx context.Context, userID, parentKey string, msg model.IntakeMessage, items []parse.Item, source model.EventSource) {
	for i, item := range items {
		key := parentKey
		if len(items) > 1 {
			key = model.SubKey(parentKey, i)
		}

		event := &model.RawEvent{
			ID:                ksuid.New().String(),
			UserID:            userID,
			OccurredAt:        msg.ReceivedAt.UTC(),
			Amount:            item.Amount,
			Currency:          p.cfg.Currency,
			Category:          item.Category,
			Note:              item.Label,
			ExternalMessageID: msg.ExternalMessageID,
			Source:            source,
			IdempotencyKey:    key,
		}

		saved, created, err := p.store.InsertEvent(ctx, event)
		if err != nil {
			slog.Error("Failed to ingest event",
				"user_id", userID,
				"idempotency_key", key,
				"error", err)
			p.sink.Emit(audit.Event{
				Type:   audit.TypeInvalidMessage,
				UserID: userID,
				Fields: map[string]any{"error": err.Error()},
			})
			continue
		}

		if created {
			p.sink.Emit(audit.Event{
				Type:    audit.TypeIngested,
				UserID:  userID,
				EventID: saved.ID,
				Fields: map[string]any{
					"amount": saved.Amount,
					"source": string(source),
				},
			})
		} else {
			p.sink.Emit(audit.Event{
				Type:    audit.TypeDuplicateHit,
				UserID:  userID,
				EventID: saved.ID,
			})
		}
	}
}

// clarify records that the message could not be ingested confidently.
// The transport layer turns this into a clarification prompt; recording
// a best guess would mean silently writing wrong data.
func (p *Pipeline) clarify(userID string, msg model.IntakeMessage) {
	p.sink.Emit(audit.Event{
		Type:   audit.TypeNeedsClarification,
		UserID: userID,
		Fields: map[string]any{"text": msg.Text},
	})
}
