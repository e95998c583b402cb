package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_RoundTrip(t *testing.T) {
	for _, algo := range []string{AlgorithmArgon2id, AlgorithmBcrypt} {
		t.Run(algo, func(t *testing.T) {
			h, err := New(algo)
			require.NoError(t, err)

			hash, err := h.Hash("s3cret")
			require.NoError(t, err)
			assert.NotEqual(t, "s3cret", hash)

			ok, err := h.Verify("s3cret", hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify("wrong", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewDefault()
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_VerifiesOtherAlgorithm(t *testing.T) {
	bc, err := New(AlgorithmBcrypt)
	require.NoError(t, err)
	hash, err := bc.Hash("pw")
	require.NoError(t, err)

	ok, err := NewDefault().Verify("pw", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_UnknownFormat(t *testing.T) {
	_, err := NewDefault().Verify("pw", "plaintext")
	assert.ErrorIs(t, err, ErrUnknownHash)

	_, err = New("md5")
	assert.Error(t, err)
}

func TestHasher_MaxBytes(t *testing.T) {
	bc, err := New(AlgorithmBcrypt)
	require.NoError(t, err)
	assert.Equal(t, 72, bc.MaxBytes())

	_, err = bc.Hash(strings.Repeat("x", 72))
	require.NoError(t, err)

	assert.Zero(t, NewDefault().MaxBytes())
	_, err = NewDefault().Hash(strings.Repeat("x", 200))
	require.NoError(t, err)
}
