package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

func setupStore(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvent(userID, key string) *model.RawEvent {
	return &model.RawEvent{
		ID:             ksuid.New().String(),
		UserID:         userID,
		OccurredAt:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Amount:         150,
		Currency:       "JPY",
		Category:       "food",
		Note:           "coffee",
		Source:         model.SourceParser,
		IdempotencyKey: key,
	}
}

func TestInsertEvent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event := testEvent("user-1", "key-1")
	saved, created, err := store.InsertEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, event.ID, saved.ID)

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Amount)
	assert.Equal(t, "food", got.Category)
	assert.Equal(t, model.SourceParser, got.Source)
}

func TestInsertEventIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := testEvent("user-1", "key-1")
	saved, created, err := store.InsertEvent(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// Redelivery: same user and key, different generated id.
	second := testEvent("user-1", "key-1")
	winner, created, err := store.InsertEvent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created, "duplicate must not create a new row")
	assert.Equal(t, saved.ID, winner.ID, "both calls must return the same record")

	events, err := store.ListEvents(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestInsertEventSameKeyDifferentUsers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, created, err := store.InsertEvent(ctx, testEvent("user-1", "shared-key"))
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = store.InsertEvent(ctx, testEvent("user-2", "shared-key"))
	require.NoError(t, err)
	assert.True(t, created, "the key is unique per user, not globally")
}

func TestInsertEventConcurrentDuplicates(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			saved, _, err := store.InsertEvent(ctx, testEvent("user-1", "race-key"))
			if err != nil {
				errs[n] = err
				return
			}
			ids[n] = saved.ID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err, "losing writers must get the winner's row, not an error")
	}
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "every caller must see the same record")
	}

	events, err := store.ListEvents(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 1, "exactly one row survives the race")
}

func TestInsertEventValidation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	t.Run("invalid amount rejected", func(t *testing.T) {
		event := testEvent("user-1", "key-bad")
		event.Amount = -5
		_, _, err := store.InsertEvent(ctx, event)
		assert.ErrorIs(t, err, common.ErrInvalidAmount)

		event.Amount = model.MaxAmount + 1
		_, _, err = store.InsertEvent(ctx, event)
		assert.ErrorIs(t, err, common.ErrInvalidAmount)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		event := testEvent("user-1", "x")
		event.IdempotencyKey = ""
		_, _, err := store.InsertEvent(ctx, event)
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("unknown source rejected", func(t *testing.T) {
		event := testEvent("user-1", "y")
		event.Source = "telepathy"
		_, _, err := store.InsertEvent(ctx, event)
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestGetEventNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetEvent(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrEventNotFound)
}

func TestListEventsRange(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := testEvent("user-1", ksuid.New().String())
		event.OccurredAt = base.AddDate(0, 0, i)
		_, _, err := store.InsertEvent(ctx, event)
		require.NoError(t, err)
	}

	events, err := store.ListEvents(ctx, "user-1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Len(t, events, 3)

	// Oldest first.
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].OccurredAt.Before(events[i-1].OccurredAt))
	}
}

func TestCompactEvents(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var oldEvent *model.RawEvent
	for i := 0; i < 4; i++ {
		event := testEvent("user-1", ksuid.New().String())
		event.OccurredAt = base.AddDate(0, i, 0)
		saved, _, err := store.InsertEvent(ctx, event)
		require.NoError(t, err)
		if i == 0 {
			oldEvent = saved
		}
	}

	// Correction on an event that will be compacted away.
	category := "entertainment"
	require.NoError(t, store.ApplyCorrection(ctx, &model.Correction{
		EventID:  oldEvent.ID,
		UserID:   "user-1",
		Category: &category,
	}))

	var progressCalls int
	deleted, err := store.CompactEvents(ctx, base.AddDate(0, 2, 0), 1, func(int64) {
		progressCalls++
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, 2, progressCalls)

	events, err := store.ListEvents(ctx, "user-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	corrections, err := store.ListCorrections(ctx, oldEvent.ID)
	require.NoError(t, err)
	assert.Empty(t, corrections, "compaction removes orphaned corrections")
}
