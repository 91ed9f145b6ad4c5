// Package classify defines the client boundary to the external
// natural-language classifier service.
//
// Responses are validated here into a tagged result rather than trusted
// ad hoc downstream. Classifier failures are local concerns: every
// caller is expected to fall back to the deterministic parser, never to
// surface a classifier error to the user.
package classify

import (
	"context"
	"fmt"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

// Intent is the classifier's reading of what a message is.
type Intent string

// Intent constants.
const (
	IntentExpense Intent = "expense"
	IntentUnclear Intent = "unclear"
	IntentOther   Intent = "other"
)

// Request is one classification call. Hints carry context such as the
// user's known categories.
type Request struct {
	Text  string
	Hints []string
}

// Result is the validated classifier outcome.
type Result struct {
	Amount     *int64
	Intent     Intent
	Category   string
	Note       string
	Confidence float64
}

// Client is the interface to the classifier service. Implementations
// must not share mutable per-call state between requests: a response
// must never be associated with a request other than the one that
// issued it.
type Client interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// Disabled is a client for deployments without a classifier service.
// Every call fails with ErrClassifierUnavailable, which callers handle
// the same way as an outage: deterministic fallback, no user-facing
// error.
type Disabled struct{}

// Classify always reports the classifier as unavailable.
func (Disabled) Classify(context.Context, Request) (Result, error) {
	return Result{}, common.ErrClassifierUnavailable
}

// Validate checks a result at the boundary.
func (r Result) Validate() error {
	switch r.Intent {
	case IntentExpense, IntentUnclear, IntentOther:
	default:
		return fmt.Errorf("unknown intent %q", r.Intent)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range", r.Confidence)
	}
	if r.Amount != nil && !model.ValidAmount(*r.Amount) {
		return fmt.Errorf("amount %d out of range", *r.Amount)
	}
	return nil
}

// Usable reports whether the result is confident enough to ingest
// directly, given the configured confidence floor.
func (r Result) Usable(minConfidence float64) bool {
	return r.Intent == IntentExpense && r.Amount != nil && r.Confidence >= minConfidence
}
