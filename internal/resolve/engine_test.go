package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kakei/kakeibot/internal/model"
	"github.com/kakei/kakeibot/internal/testutil"
)

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

func ingest(t *testing.T, store interface {
	InsertEvent(ctx context.Context, event *model.RawEvent) (*model.RawEvent, bool, error)
}, userID, note, category string, amount int64) *model.RawEvent {
	t.Helper()

	event := &model.RawEvent{
		ID:             ksuid.New().String(),
		UserID:         userID,
		OccurredAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Amount:         amount,
		Currency:       "JPY",
		Category:       category,
		Note:           note,
		Source:         model.SourceParser,
		IdempotencyKey: ksuid.New().String(),
	}
	saved, created, err := store.InsertEvent(context.Background(), event)
	require.NoError(t, err)
	require.True(t, created)
	return saved
}

func TestResolveRawPassThrough(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)

	event := ingest(t, store, "user-1", "coffee", "food", 150)

	view, err := engine.Resolve(context.Background(), *event)
	require.NoError(t, err)

	assert.Equal(t, int64(150), view.Amount)
	assert.Equal(t, "food", view.Category)
	assert.Equal(t, "coffee", view.Note)
	assert.Equal(t, model.OriginRaw, view.Audit.Amount.Origin)
	assert.Equal(t, model.OriginRaw, view.Audit.Category.Origin)
	assert.Equal(t, model.OriginRaw, view.Audit.Note.Origin)
}

func TestResolveCorrectionFieldMerge(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "coffee", "food", 150)

	correction := &model.Correction{
		EventID:  event.ID,
		UserID:   "user-1",
		Category: strPtr("entertainment"),
	}
	require.NoError(t, store.ApplyCorrection(ctx, correction))

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)

	assert.Equal(t, "entertainment", view.Category)
	assert.Equal(t, int64(150), view.Amount, "uncorrected fields stay raw")
	assert.Equal(t, "coffee", view.Note)

	assert.Equal(t, model.OriginCorrection, view.Audit.Category.Origin)
	assert.Equal(t, correction.ID, view.Audit.Category.OverlayID)
	assert.Equal(t, model.OriginRaw, view.Audit.Amount.Origin)
}

func TestResolveRuleRetroactive(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "starbucks shibuya", "", 420)

	// Raw view first.
	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "", view.Category)

	// A rule added after ingestion reinterprets the past event.
	rule := &model.Rule{
		UserID:          "user-1",
		Name:            "starbucks is coffee",
		MerchantPattern: "starbucks",
		SetCategory:     strPtr("food"),
		Specificity:     5,
	}
	require.NoError(t, store.CreateRule(ctx, rule))

	view, err = engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "food", view.Category)
	assert.Equal(t, model.OriginRule, view.Audit.Category.Origin)
	assert.Equal(t, rule.ID, view.Audit.Category.OverlayID)

	// The raw row is untouched.
	raw, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "", raw.Category)
}

func TestResolveCorrectionBeatsRule(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "starbucks", "", 420)

	require.NoError(t, store.ApplyCorrection(ctx, &model.Correction{
		EventID:  event.ID,
		UserID:   "user-1",
		Category: strPtr("entertainment"),
	}))

	// Rule created after the correction still loses.
	require.NoError(t, store.CreateRule(ctx, &model.Rule{
		UserID:          "user-1",
		Name:            "later rule",
		MerchantPattern: "starbucks",
		SetCategory:     strPtr("food"),
		SetAmount:       intPtr(999),
		Specificity:     100,
	}))

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)

	assert.Equal(t, "entertainment", view.Category, "correction wins regardless of rule recency")
	assert.Equal(t, model.OriginCorrection, view.Audit.Category.Origin)

	// The rule still supplies fields the correction leaves unset.
	assert.Equal(t, int64(999), view.Amount)
	assert.Equal(t, model.OriginRule, view.Audit.Amount.Origin)
}

func TestResolveRuleTieBreaking(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "uber to narita", "", 3000)

	require.NoError(t, store.CreateRule(ctx, &model.Rule{
		UserID: "user-1", Name: "generic", MerchantPattern: "uber",
		SetCategory: strPtr("transport"), Specificity: 1,
	}))
	require.NoError(t, store.CreateRule(ctx, &model.Rule{
		UserID: "user-1", Name: "specific", MerchantPattern: "uber to narita",
		SetCategory: strPtr("travel"), Specificity: 10,
	}))

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "travel", view.Category, "highest specificity wins")

	t.Run("recency breaks specificity ties", func(t *testing.T) {
		other := ingest(t, store, "user-2", "lawson", "", 500)

		require.NoError(t, store.CreateRule(ctx, &model.Rule{
			UserID: "user-2", Name: "older", MerchantPattern: "lawson",
			SetCategory: strPtr("food"), Specificity: 5,
		}))
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, store.CreateRule(ctx, &model.Rule{
			UserID: "user-2", Name: "newer", MerchantPattern: "lawson",
			SetCategory: strPtr("snacks"), Specificity: 5,
		}))

		view, err := engine.Resolve(ctx, *other)
		require.NoError(t, err)
		assert.Equal(t, "snacks", view.Category)
	})
}

func TestResolveRegexRule(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "jr east ticket", "", 210)

	require.NoError(t, store.CreateRule(ctx, &model.Rule{
		UserID: "user-1", Name: "rail", MerchantPattern: `^jr\s`,
		IsRegex: true, SetCategory: strPtr("transport"),
	}))

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "transport", view.Category)
}

func TestResolveCategoryEqualsPredicate(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	foodEvent := ingest(t, store, "user-1", "conbini", "food", 500)
	otherEvent := ingest(t, store, "user-1", "conbini", "misc", 500)

	require.NoError(t, store.CreateRule(ctx, &model.Rule{
		UserID: "user-1", Name: "food to groceries",
		MerchantPattern: "conbini", CategoryEquals: strPtr("food"),
		SetCategory: strPtr("groceries"),
	}))

	view, err := engine.Resolve(ctx, *foodEvent)
	require.NoError(t, err)
	assert.Equal(t, "groceries", view.Category)

	view, err = engine.Resolve(ctx, *otherEvent)
	require.NoError(t, err)
	assert.Equal(t, "misc", view.Category, "predicate must gate the rule")
}

func TestResolveInactiveOverlaysIgnored(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "coffee", "food", 150)

	rule := &model.Rule{
		UserID: "user-1", Name: "r", MerchantPattern: "coffee",
		SetCategory: strPtr("drinks"),
	}
	require.NoError(t, store.CreateRule(ctx, rule))
	require.NoError(t, store.SetRuleActive(ctx, rule.ID, "user-1", false))

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "food", view.Category)
}

func TestResolveCacheInvalidation(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "coffee", "food", 150)

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "food", view.Category)

	// Cached result served while nothing changed.
	again, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, view, again)

	// An overlay write must invalidate on the next read.
	require.NoError(t, store.ApplyCorrection(ctx, &model.Correction{
		EventID:  event.ID,
		UserID:   "user-1",
		Category: strPtr("entertainment"),
	}))

	updated, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, "entertainment", updated.Category)
}

func TestResolveSupersededCorrectionIgnored(t *testing.T) {
	store := testutil.SetupTestDB(t)
	engine := NewEngine(store)
	ctx := context.Background()

	event := ingest(t, store, "user-1", "coffee", "food", 150)

	require.NoError(t, store.ApplyCorrection(ctx, &model.Correction{
		EventID: event.ID, UserID: "user-1", Amount: intPtr(500),
	}))
	require.NoError(t, store.ApplyCorrection(ctx, &model.Correction{
		EventID: event.ID, UserID: "user-1", Amount: intPtr(700),
	}))

	view, err := engine.Resolve(ctx, *event)
	require.NoError(t, err)
	assert.Equal(t, int64(700), view.Amount, "only the newest correction applies")
}
