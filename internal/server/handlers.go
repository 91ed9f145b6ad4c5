package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kakei/kakeibot/internal/audit"
	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
	"github.com/kakei/kakeibot/internal/storage"
)

// maxBodyBytes caps request bodies; intake messages are short chat
// lines and overlay payloads are a handful of fields.
const maxBodyBytes = 64 * 1024

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

type intakeRequest struct {
	UserHandle        string    `json:"user_handle"`
	Text              string    `json:"text"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	ReceivedAt        time.Time `json:"received_at,omitempty"`
}

type intakeResponse struct {
	Status string `json:"status"`
}

// handleIntake accepts a chat message and hands it to the async
// pipeline. Acceptance is an acknowledgement of receipt, not of
// ingestion; the idempotency key makes redelivery after a 429 safe.
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserHandle == "" {
		writeError(w, http.StatusBadRequest, "user_handle is required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now().UTC()
	}

	err := s.pipeline.Enqueue(model.IntakeMessage{
		ReceivedAt:        req.ReceivedAt,
		UserHandle:        req.UserHandle,
		ExternalMessageID: req.ExternalMessageID,
		Text:              req.Text,
	})
	if errors.Is(err, common.ErrQueueFull) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "intake queue full, retry with the same message id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue message")
		return
	}

	writeJSON(w, http.StatusAccepted, intakeResponse{Status: "accepted"})
}

type correctionRequest struct {
	UserHandle string  `json:"user_handle"`
	EventID    string  `json:"event_id"`
	Amount     *int64  `json:"amount,omitempty"`
	Category   *string `json:"category,omitempty"`
	Note       *string `json:"note,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// handleCorrection applies a user correction to one event. Ownership
// is enforced in storage; a cross-user attempt is a 403 and leaves no
// trace in the overlay store.
func (s *Server) handleCorrection(w http.ResponseWriter, r *http.Request) {
	var req correctionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, err := s.normalizer.Normalize(req.UserHandle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_handle")
		return
	}

	correction := &model.Correction{
		EventID:  req.EventID,
		UserID:   userID,
		Amount:   req.Amount,
		Category: req.Category,
		Note:     req.Note,
		Reason:   req.Reason,
	}

	if err := s.store.ApplyCorrection(r.Context(), correction); err != nil {
		switch {
		case errors.Is(err, common.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, common.ErrNotOwner):
			writeError(w, http.StatusForbidden, "event belongs to another user")
		case errors.Is(err, storage.ErrEmptyCorrection),
			errors.Is(err, common.ErrInvalidAmount),
			errors.Is(err, storage.ErrEmptyString):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("Failed to apply correction", "event_id", req.EventID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to apply correction")
		}
		return
	}

	s.sink.Emit(audit.Event{
		Type:    audit.TypeCorrectionApplied,
		UserID:  userID,
		EventID: correction.EventID,
		Fields:  map[string]any{"correction_id": correction.ID},
	})

	writeJSON(w, http.StatusCreated, correction)
}

type correctionHistoryResponse struct {
	Corrections []model.Correction `json:"corrections"`
}

// handleCorrectionHistory lists every correction ever issued for one
// event, superseded ones included. Supersession flips a flag, it never
// deletes, so the full revision history stays queryable.
func (s *Server) handleCorrectionHistory(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	userID, err := s.normalizer.Normalize(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	event, err := s.store.GetEvent(r.Context(), eventID)
	if errors.Is(err, common.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}
	if event.UserID != userID {
		writeError(w, http.StatusForbidden, "event belongs to another user")
		return
	}

	corrections, err := s.store.ListCorrections(r.Context(), eventID)
	if err != nil {
		slog.Error("Failed to list corrections", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list corrections")
		return
	}

	writeJSON(w, http.StatusOK, correctionHistoryResponse{Corrections: corrections})
}

type ruleRequest struct {
	UserHandle      string  `json:"user_handle"`
	Name            string  `json:"name"`
	MerchantPattern string  `json:"merchant_pattern,omitempty"`
	IsRegex         bool    `json:"is_regex,omitempty"`
	CategoryEquals  *string `json:"category_equals,omitempty"`
	SetAmount       *int64  `json:"set_amount,omitempty"`
	SetCategory     *string `json:"set_category,omitempty"`
	SetNote         *string `json:"set_note,omitempty"`
	Specificity     int     `json:"specificity,omitempty"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, err := s.normalizer.Normalize(req.UserHandle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_handle")
		return
	}

	rule := &model.Rule{
		UserID:          userID,
		Name:            req.Name,
		MerchantPattern: req.MerchantPattern,
		IsRegex:         req.IsRegex,
		CategoryEquals:  req.CategoryEquals,
		SetAmount:       req.SetAmount,
		SetCategory:     req.SetCategory,
		SetNote:         req.SetNote,
		Specificity:     req.Specificity,
	}

	if err := s.store.CreateRule(r.Context(), rule); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidRule),
			errors.Is(err, common.ErrInvalidAmount),
			errors.Is(err, storage.ErrEmptyString):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("Failed to create rule", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create rule")
		}
		return
	}

	s.sink.Emit(audit.Event{
		Type:   audit.TypeRuleUpdated,
		UserID: userID,
		Fields: map[string]any{"rule_id": rule.ID, "active": true},
	})

	writeJSON(w, http.StatusCreated, rule)
}

type patchRuleRequest struct {
	UserHandle string `json:"user_handle"`
	Active     *bool  `json:"active"`
}

// handlePatchRule flips a rule's active flag. Rules are never deleted;
// deactivation immediately changes how matching history resolves.
func (s *Server) handlePatchRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req patchRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	userID, err := s.normalizer.Normalize(req.UserHandle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_handle")
		return
	}

	if err := s.store.SetRuleActive(r.Context(), id, userID, *req.Active); err != nil {
		switch {
		case errors.Is(err, common.ErrRuleNotFound):
			writeError(w, http.StatusNotFound, "rule not found")
		case errors.Is(err, common.ErrNotOwner):
			writeError(w, http.StatusForbidden, "rule belongs to another user")
		default:
			slog.Error("Failed to update rule", "rule_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update rule")
		}
		return
	}

	s.sink.Emit(audit.Event{
		Type:   audit.TypeRuleUpdated,
		UserID: userID,
		Fields: map[string]any{"rule_id": id, "active": *req.Active},
	})

	rule, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type listEventsResponse struct {
	Events []model.EffectiveView `json:"events"`
}

// handleListEvents returns effective views for a user over a time
// range. Raw events are layered with overlays at read time; the
// response carries per-field provenance so a client can show what was
// corrected and by which overlay.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	handle := q.Get("user")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}
	userID, err := s.normalizer.Normalize(handle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user")
		return
	}

	var from, to time.Time
	if raw := q.Get("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC 3339")
			return
		}
	}

	events, err := s.store.ListEvents(r.Context(), userID, from, to)
	if err != nil {
		slog.Error("Failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	views, err := s.resolver.ResolveAll(r.Context(), events)
	if err != nil {
		slog.Error("Failed to resolve events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve events")
		return
	}

	writeJSON(w, http.StatusOK, listEventsResponse{Events: views})
}
