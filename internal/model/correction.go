package model

import (
	"time"
)

// Correction is a user-issued override of a single raw event's fields.
// Corrections are append-only: a new correction for the same event
// supersedes the previous one by flipping its active flag, never by
// deleting it.
type Correction struct {
	CreatedAt    time.Time  `json:"created_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	Amount       *int64     `json:"amount,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Note         *string    `json:"note,omitempty"`
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	UserID       string     `json:"user_id"`
	Reason       string     `json:"reason,omitempty"`
	SupersededBy string     `json:"superseded_by,omitempty"`
	Active       bool       `json:"active"`
}

// Empty reports whether the correction overrides no fields at all.
func (c *Correction) Empty() bool {
	return c.Amount == nil && c.Category == nil && c.Note == nil
}
