package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// fallbackBucket is the coarse timestamp bucket used to dedupe retried
// messages that carry no external message id.
const fallbackBucket = 5 * time.Minute

// IngestionKey derives the idempotency key for a message that carries
// an external message id. Redelivery of the same message produces the
// same key, so the storage-level unique index collapses duplicates.
func IngestionKey(userID, externalMessageID string) string {
	data := fmt.Sprintf("%s:%s", userID, externalMessageID)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// FallbackIngestionKey derives an idempotency key for a message without
// an external message id, from the content hash plus a coarse timestamp
// bucket. Retries within the bucket still dedupe.
func FallbackIngestionKey(userID, text string, receivedAt time.Time) string {
	content := sha256.Sum256([]byte(text))
	bucket := receivedAt.UTC().Truncate(fallbackBucket).Unix()
	data := fmt.Sprintf("%s:%x:%d", userID, content, bucket)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// SubKey derives the per-item idempotency key for one item of a
// multi-amount message. Redelivery of the whole message regenerates the
// same ordinals, so each item stays individually idempotent.
func SubKey(parentKey string, ordinal int) string {
	return fmt.Sprintf("%s#%d", parentKey, ordinal)
}
