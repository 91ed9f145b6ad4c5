// Package server exposes the HTTP API: message intake, corrections,
// rules, and the effective-view read endpoint.
//
// The transport's authentication and signature verification happen
// upstream; requests arriving here carry a verified external handle.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kakei/kakeibot/internal/audit"
	"github.com/kakei/kakeibot/internal/identity"
	"github.com/kakei/kakeibot/internal/pipeline"
	"github.com/kakei/kakeibot/internal/resolve"
	"github.com/kakei/kakeibot/internal/service"
)

// Server wires the HTTP handlers to the core components.
type Server struct {
	store      service.Storage
	pipeline   *pipeline.Pipeline
	resolver   *resolve.Engine
	normalizer *identity.Normalizer
	sink       audit.Sink
	httpServer *http.Server
}

// Config holds the HTTP server configuration.
type Config struct {
	Addr string
}

// New creates a server.
func New(cfg Config, store service.Storage, p *pipeline.Pipeline, resolver *resolve.Engine, normalizer *identity.Normalizer, sink audit.Sink) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if sink == nil {
		sink = audit.NopSink{}
	}

	s := &Server{
		store:      store,
		pipeline:   p,
		resolver:   resolver,
		normalizer: normalizer,
		sink:       sink,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/intake", s.handleIntake)
	mux.HandleFunc("POST /v1/corrections", s.handleCorrection)
	mux.HandleFunc("GET /v1/events/{id}/corrections", s.handleCorrectionHistory)
	mux.HandleFunc("POST /v1/rules", s.handleCreateRule)
	mux.HandleFunc("PATCH /v1/rules/{id}", s.handlePatchRule)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe runs the server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
