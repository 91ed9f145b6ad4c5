package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kakei/kakeibot/internal/config"
)

func compactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Delete events older than the retention window",
		Long: `Remove raw events that occurred before the cutoff, along with their
corrections. This is the only supported deletion path for ledger data;
use it for retention policy, not for fixing mistakes. Mistakes get
corrections.`,
		RunE: runCompact,
	}

	cmd.Flags().String("before", "", "delete events before this RFC 3339 timestamp (required)")
	cmd.Flags().Int("batch-size", 500, "events deleted per transaction")
	cmd.Flags().Bool("dry-run", false, "count matching events without deleting")
	_ = cmd.MarkFlagRequired("before")

	return cmd
}

func runCompact(cmd *cobra.Command, _ []string) error {
	rawBefore, _ := cmd.Flags().GetString("before")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	before, err := time.Parse(time.RFC3339, rawBefore)
	if err != nil {
		return fmt.Errorf("invalid --before timestamp: %w", err)
	}

	// Compaction only needs the database; no identity secret required.
	settings := config.FromViper(viper.GetViper())

	ctx := cmd.Context()
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	total, err := store.CountEventsBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}

	if dryRun {
		cmd.Printf("%d events occurred before %s\n", total, before.Format(time.RFC3339))
		return nil
	}

	if total == 0 {
		cmd.Println("Nothing to compact")
		return nil
	}

	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Compacting events..."),
	)

	deleted, err := store.CompactEvents(ctx, before, batchSize, func(n int64) {
		_ = bar.Add64(n)
	})
	if err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	slog.Info("Compaction complete", "deleted", deleted, "before", before)
	return nil
}
