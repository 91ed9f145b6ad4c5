package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIngestionKeyDeterministic(t *testing.T) {
	key1 := IngestionKey("user-1", "msg-42")
	key2 := IngestionKey("user-1", "msg-42")

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 64)
}

func TestIngestionKeyScopedByUser(t *testing.T) {
	// The same external id from two users must never collide.
	assert.NotEqual(t,
		IngestionKey("user-1", "msg-42"),
		IngestionKey("user-2", "msg-42"))

	assert.NotEqual(t,
		IngestionKey("user-1", "msg-42"),
		IngestionKey("user-1", "msg-43"))
}

func TestFallbackIngestionKeyBuckets(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 2, 0, 0, time.UTC)

	t.Run("retry within bucket dedupes", func(t *testing.T) {
		a := FallbackIngestionKey("user-1", "coffee 150", base)
		b := FallbackIngestionKey("user-1", "coffee 150", base.Add(90*time.Second))
		assert.Equal(t, a, b)
	})

	t.Run("next bucket is a new message", func(t *testing.T) {
		a := FallbackIngestionKey("user-1", "coffee 150", base)
		b := FallbackIngestionKey("user-1", "coffee 150", base.Add(10*time.Minute))
		assert.NotEqual(t, a, b)
	})

	t.Run("different text differs", func(t *testing.T) {
		a := FallbackIngestionKey("user-1", "coffee 150", base)
		b := FallbackIngestionKey("user-1", "coffee 151", base)
		assert.NotEqual(t, a, b)
	})

	t.Run("timezone does not matter", func(t *testing.T) {
		jst := time.FixedZone("JST", 9*60*60)
		a := FallbackIngestionKey("user-1", "coffee 150", base)
		b := FallbackIngestionKey("user-1", "coffee 150", base.In(jst))
		assert.Equal(t, a, b)
	})
}

func TestSubKey(t *testing.T) {
	parent := IngestionKey("user-1", "msg-42")

	first := SubKey(parent, 0)
	second := SubKey(parent, 1)

	assert.NotEqual(t, first, second)
	assert.Equal(t, first, SubKey(parent, 0), "same ordinal regenerates the same key")
	assert.Contains(t, first, parent, "sub keys remain traceable to the parent")
}
