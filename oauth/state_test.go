package oauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSigner_RoundTrip(t *testing.T) {
	signer := NewStateSigner("secret", time.Minute)

	state, err := signer.Issue("github")
	require.NoError(t, err)

	providerID, err := signer.Verify(state)
	require.NoError(t, err)
	assert.Equal(t, "github", providerID)

	other, err := signer.Issue("github")
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func TestStateSigner_Rejects(t *testing.T) {
	signer := NewStateSigner("secret", time.Minute)
	state, err := signer.Issue("github")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		late := NewStateSigner("secret", time.Minute)
		late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		_, err := late.Verify(state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewStateSigner("other", time.Minute).Verify(state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := signer.Verify(state + "x")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, stateClaims{
			Provider: "github",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = signer.Verify(unsigned)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := signer.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestNewStateSigner_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultStateTTL, NewStateSigner("s", 0).ttl)
}
