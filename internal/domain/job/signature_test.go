package job

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_Format(t *testing.T) {
	sig := Sign([]byte(`{"analysis_id":"a"}`), "secret")
	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.Len(t, strings.TrimPrefix(sig, "sha256="), 64)
	assert.Equal(t, sig, Sign([]byte(`{"analysis_id":"a"}`), "secret"))
}

func TestVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"analysis_id":"analysis_abc","status":"completed"}`)
	sig := Sign(body, "s3cret")

	res, err := Verify(body, sig, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, VerifiedSignature, res)

	t.Run("prefix is optional", func(t *testing.T) {
		_, err := Verify(body, strings.TrimPrefix(sig, "sha256="), "s3cret")
		require.NoError(t, err)
	})

	t.Run("other secret rejects", func(t *testing.T) {
		_, err := Verify(body, sig, "other")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("mutated payload rejects", func(t *testing.T) {
		mutated := []byte(`{"analysis_id":"analysis_abc","status":"failed"}`)
		_, err := Verify(mutated, sig, "s3cret")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("garbage digest rejects", func(t *testing.T) {
		_, err := Verify(body, "sha256=zz", "s3cret")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestVerify_MissingSignature(t *testing.T) {
	_, err := Verify([]byte("{}"), "", "s3cret")
	require.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerify_NoSecretAccepts(t *testing.T) {
	res, err := Verify([]byte("{}"), "", "")
	require.NoError(t, err)
	assert.Equal(t, VerifiedNoSecret, res)

	res, err = Verify([]byte("{}"), "sha256=deadbeef", "")
	require.NoError(t, err)
	assert.Equal(t, VerifiedNoSecret, res)
}
