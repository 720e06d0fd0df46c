package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateJWT("u1", "alice")
	require.NoError(t, err)

	id, err := ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", id.UserID)
	require.Equal(t, "alice", id.Name)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := ValidateToken("not-a-token")
	require.Error(t, err)
}

func TestAccessAndRefreshSecretsAreDistinct(t *testing.T) {
	refresh, err := GenerateRefreshToken("u1", "alice")
	require.NoError(t, err)

	// A refresh token must not pass access-token validation.
	_, err = ValidateToken(refresh)
	require.Error(t, err)

	id, err := ValidateRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, "u1", id.UserID)
}
