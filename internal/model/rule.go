package model

import (
	"time"
)

// Rule is a standing, pattern-based override. Rules are matched lazily
// at read time, so a rule added today reinterprets every past matching
// event without touching the raw ledger.
type Rule struct {
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	CategoryEquals  *string   `json:"category_equals,omitempty"`
	SetAmount       *int64    `json:"set_amount,omitempty"`
	SetCategory     *string   `json:"set_category,omitempty"`
	SetNote         *string   `json:"set_note,omitempty"`
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	MerchantPattern string    `json:"merchant_pattern,omitempty"`
	Specificity     int       `json:"specificity"`
	IsRegex         bool      `json:"is_regex"`
	Active          bool      `json:"active"`
}

// HasPredicate reports whether the rule constrains matching at all.
// A rule with no predicate would match every event, which is rejected
// at creation time.
func (r *Rule) HasPredicate() bool {
	return r.MerchantPattern != "" || r.CategoryEquals != nil
}

// HasOverwrite reports whether the rule changes any field.
func (r *Rule) HasOverwrite() bool {
	return r.SetAmount != nil || r.SetCategory != nil || r.SetNote != nil
}
