// Package identity maps external user handles to stable internal ids.
//
// The internal id is a keyed digest of the handle. Normalization is the
// single digest site in the repository: every other component either
// accepts an already-normalized id or calls Normalize, never a hash
// primitive directly. Re-normalizing an already-normalized id returns
// it unchanged, so an id can safely flow through multiple code paths
// that each attempt normalization.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kakei/kakeibot/internal/common"
)

// Normalizer computes stable internal ids from external handles.
type Normalizer struct {
	secret []byte
}

// NewNormalizer creates a normalizer keyed with the server-side secret.
func NewNormalizer(secret string) (*Normalizer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, common.ErrMissingConfig
	}
	return &Normalizer{secret: []byte(secret)}, nil
}

// Normalize maps an external handle to its internal id. Input that
// already has the internal id shape is returned unchanged, case
// normalized. Empty input fails with ErrInvalidIdentity.
func (n *Normalizer) Normalize(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", common.ErrInvalidIdentity
	}

	lowered := strings.ToLower(trimmed)
	if common.InternalIDPattern.MatchString(lowered) {
		return lowered, nil
	}

	h := sha256.New()
	h.Write(n.secret)
	h.Write([]byte(trimmed))
	return hex.EncodeToString(h.Sum(nil)), nil
}
