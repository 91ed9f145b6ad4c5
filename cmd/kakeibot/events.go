package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kakei/kakeibot/internal/model"
	"github.com/kakei/kakeibot/internal/resolve"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show a user's effective ledger",
		Long: `Print the effective view of a user's events over a time range.
Each row shows the field values after corrections and rules are
layered over the raw event, with the origin of each overridden field.`,
		RunE: runEvents,
	}

	cmd.Flags().String("user", "", "user handle (required)")
	cmd.Flags().String("from", "", "start of range, RFC 3339 (default: 30 days ago)")
	cmd.Flags().String("to", "", "end of range, RFC 3339 (default: now)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	handle, _ := cmd.Flags().GetString("user")
	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")

	from := time.Now().AddDate(0, 0, -30)
	if rawFrom != "" {
		parsed, err := time.Parse(time.RFC3339, rawFrom)
		if err != nil {
			return fmt.Errorf("invalid --from timestamp: %w", err)
		}
		from = parsed
	}

	var to time.Time
	if rawTo != "" {
		parsed, err := time.Parse(time.RFC3339, rawTo)
		if err != nil {
			return fmt.Errorf("invalid --to timestamp: %w", err)
		}
		to = parsed
	}

	settings, err := loadSettings()
	if err != nil {
		return err
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
	userID, err := normalizer.Normalize(handle)
	if err != nil {
		return fmt.Errorf("invalid user handle: %w", err)
	}

	events, err := store.ListEvents(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	if len(events) == 0 {
		cmd.Println("No events in range")
		return nil
	}

	views, err := resolve.NewEngine(store).ResolveAll(ctx, events)
	if err != nil {
		return fmt.Errorf("failed to resolve events: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OCCURRED\tAMOUNT\tCATEGORY\tNOTE\tORIGINS")
	for i := range views {
		v := &views[i]
		fmt.Fprintf(w, "%s\t%d %s\t%s\t%s\t%s\n",
			v.Event.OccurredAt.Format("2006-01-02 15:04"),
			v.Amount, v.Event.Currency,
			v.Category, v.Note, describeOrigins(v.Audit))
	}
	return w.Flush()
}

// describeOrigins names the fields that did not come from the raw
// event, e.g. "category:correction amount:rule".
func describeOrigins(a model.EffectiveAudit) string {
	var parts []string
	if a.Amount.Origin != model.OriginRaw {
		parts = append(parts, "amount:"+string(a.Amount.Origin))
	}
	if a.Category.Origin != model.OriginRaw {
		parts = append(parts, "category:"+string(a.Category.Origin))
	}
	if a.Note.Origin != model.OriginRaw {
		parts = append(parts, "note:"+string(a.Note.Origin))
	}
	if len(parts) == 0 {
		return "raw"
	}
	return strings.Join(parts, " ")
}
