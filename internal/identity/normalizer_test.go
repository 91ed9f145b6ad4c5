package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kakei/kakeibot/internal/common"
)

func TestNewNormalizer(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		_, err := NewNormalizer("")
		assert.ErrorIs(t, err, common.ErrMissingConfig)

		_, err = NewNormalizer("   ")
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})

	t.Run("accepts any non-empty secret", func(t *testing.T) {
		n, err := NewNormalizer("test-secret")
		require.NoError(t, err)
		assert.NotNil(t, n)
	})
}

func TestNormalizeIdempotent(t *testing.T) {
	n, err := NewNormalizer("test-secret")
	require.NoError(t, err)

	handles := []string{
		"U1234567890abcdef",
		"line:user-42",
		"alice@example.com",
		"日本語ハンドル",
	}

	for _, handle := range handles {
		once, err := n.Normalize(handle)
		require.NoError(t, err, "handle %q", handle)

		twice, err := n.Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "normalize(normalize(%q)) must be stable", handle)
	}
}

func TestNormalize(t *testing.T) {
	n, err := NewNormalizer("test-secret")
	require.NoError(t, err)

	t.Run("empty input fails", func(t *testing.T) {
		_, err := n.Normalize("")
		assert.ErrorIs(t, err, common.ErrInvalidIdentity)

		_, err = n.Normalize("  \t ")
		assert.ErrorIs(t, err, common.ErrInvalidIdentity)
	})

	t.Run("output has the internal id shape", func(t *testing.T) {
		id, err := n.Normalize("U1234567890abcdef")
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9a-f]{64}$`, id)
	})

	t.Run("distinct handles map to distinct ids", func(t *testing.T) {
		a, err := n.Normalize("alice")
		require.NoError(t, err)
		b, err := n.Normalize("bob")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("already normalized ids pass through case normalized", func(t *testing.T) {
		id, err := n.Normalize("alice")
		require.NoError(t, err)

		upper := "0XDEAD" // not a full digest, must be re-hashed
		rehashed, err := n.Normalize(upper)
		require.NoError(t, err)
		assert.NotEqual(t, upper, rehashed)

		mixed := "AbCdEf" + id[6:]
		out, err := n.Normalize(mixed)
		require.NoError(t, err)
		assert.Equal(t, "abcdef"+id[6:], out)
	})

	t.Run("secret changes the mapping", func(t *testing.T) {
		other, err := NewNormalizer("other-secret")
		require.NoError(t, err)

		a, err := n.Normalize("alice")
		require.NoError(t, err)
		b, err := other.Normalize("alice")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("same handle always maps to the same id", func(t *testing.T) {
		a, err := n.Normalize("alice")
		require.NoError(t, err)
		b, err := n.Normalize("alice")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
