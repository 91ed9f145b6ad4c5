package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

func TestApplyCorrection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event, _, err := store.InsertEvent(ctx, testEvent("user-1", "key-1"))
	require.NoError(t, err)

	amount := int64(500)
	correction := &model.Correction{
		EventID: event.ID,
		UserID:  "user-1",
		Amount:  &amount,
		Reason:  "typo in original message",
	}
	require.NoError(t, store.ApplyCorrection(ctx, correction))
	assert.NotEmpty(t, correction.ID)
	assert.True(t, correction.Active)

	active, err := store.GetActiveCorrection(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.NotNil(t, active.Amount)
	assert.Equal(t, int64(500), *active.Amount)
	assert.Nil(t, active.Category, "unset fields stay nil")
}

func TestApplyCorrectionSupersedes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event, _, err := store.InsertEvent(ctx, testEvent("user-1", "key-1"))
	require.NoError(t, err)

	first := int64(500)
	c1 := &model.Correction{EventID: event.ID, UserID: "user-1", Amount: &first}
	require.NoError(t, store.ApplyCorrection(ctx, c1))

	second := int64(700)
	c2 := &model.Correction{EventID: event.ID, UserID: "user-1", Amount: &second}
	require.NoError(t, store.ApplyCorrection(ctx, c2))

	active, err := store.GetActiveCorrection(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, c2.ID, active.ID)

	all, err := store.ListCorrections(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, all, 2, "superseded corrections remain queryable")

	activeCount := 0
	for _, c := range all {
		if c.Active {
			activeCount++
			continue
		}
		assert.Equal(t, c2.ID, c.SupersededBy)
		assert.NotNil(t, c.SupersededAt)
	}
	assert.Equal(t, 1, activeCount, "exactly one correction is active")
}

func TestApplyCorrectionOwnership(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event, _, err := store.InsertEvent(ctx, testEvent("user-1", "key-1"))
	require.NoError(t, err)

	amount := int64(100)

	t.Run("foreign event rejected", func(t *testing.T) {
		err := store.ApplyCorrection(ctx, &model.Correction{
			EventID: event.ID,
			UserID:  "user-2",
			Amount:  &amount,
		})
		assert.ErrorIs(t, err, common.ErrNotOwner)
	})

	t.Run("nonexistent event rejected", func(t *testing.T) {
		err := store.ApplyCorrection(ctx, &model.Correction{
			EventID: "missing",
			UserID:  "user-1",
			Amount:  &amount,
		})
		assert.ErrorIs(t, err, common.ErrEventNotFound)
	})
}

func TestApplyCorrectionValidation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event, _, err := store.InsertEvent(ctx, testEvent("user-1", "key-1"))
	require.NoError(t, err)

	t.Run("empty correction rejected", func(t *testing.T) {
		err := store.ApplyCorrection(ctx, &model.Correction{
			EventID: event.ID,
			UserID:  "user-1",
		})
		assert.ErrorIs(t, err, ErrEmptyCorrection)
	})

	t.Run("out of range amount rejected", func(t *testing.T) {
		bad := int64(-1)
		err := store.ApplyCorrection(ctx, &model.Correction{
			EventID: event.ID,
			UserID:  "user-1",
			Amount:  &bad,
		})
		assert.ErrorIs(t, err, common.ErrInvalidAmount)
	})
}

func TestGetActiveCorrectionNone(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event, _, err := store.InsertEvent(ctx, testEvent("user-1", "key-1"))
	require.NoError(t, err)

	active, err := store.GetActiveCorrection(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, active, "no correction is not an error")
}

func TestCorrectionBumpsOverlayVersion(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	event, _, err := store.InsertEvent(ctx, testEvent("user-1", "key-1"))
	require.NoError(t, err)

	before := store.OverlayVersion("user-1")
	amount := int64(300)
	require.NoError(t, store.ApplyCorrection(ctx, &model.Correction{
		EventID: event.ID,
		UserID:  "user-1",
		Amount:  &amount,
	}))
	assert.Greater(t, store.OverlayVersion("user-1"), before)
}
