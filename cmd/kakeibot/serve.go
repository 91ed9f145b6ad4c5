package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kakei/kakeibot/internal/audit"
	"github.com/kakei/kakeibot/internal/classify"
	"github.com/kakei/kakeibot/internal/pipeline"
	"github.com/kakei/kakeibot/internal/ratelimit"
	"github.com/kakei/kakeibot/internal/resolve"
	"github.com/kakei/kakeibot/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion server",
		Long: `Start the HTTP server: message intake, corrections, rules, and the
effective-view read API. Intake is asynchronous; accepted messages are
processed by a bounded worker pool.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default from config, :8080)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		settings.ListenAddr = addr
	}

	ctx := cmd.Context()

	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	normalizer, err := initNormalizer(settings)
	if err != nil {
		return err
	}

	var classifier classify.Client = classify.Disabled{}
	if settings.ClassifierURL != "" {
		classifier, err = classify.NewHTTPClient(settings.ClassifierURL, settings.ClassifyTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize classifier client: %w", err)
		}
	} else {
		slog.Warn("No classifier configured, free-form messages will request clarification")
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:       settings.RateWindow,
		PerUserLimit: settings.RatePerUser,
		GlobalLimit:  settings.RateGlobal,
	})

	sink := audit.NewLogSink(slog.Default())

	p := pipeline.New(pipeline.Config{
		Workers:         settings.Workers,
		QueueSize:       settings.QueueSize,
		ClassifyTimeout: settings.ClassifyTimeout,
		MinConfidence:   settings.MinConfidence,
		Currency:        settings.Currency,
	}, normalizer, limiter, classifier, store, sink)

	p.Start(ctx)
	defer p.Close()

	srv := server.New(
		server.Config{Addr: settings.ListenAddr},
		store,
		p,
		resolve.NewEngine(store),
		normalizer,
		sink,
	)

	slog.Info("Starting kakeibot",
		"addr", settings.ListenAddr,
		"database", settings.DBPath,
		"workers", settings.Workers)

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("Server stopped, draining pipeline")
	return nil
}
