package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	tm := newTestTokenManager()
	pair, err := tm.GenerateTokenPair("user-1", "admin")
	require.NoError(t, err)

	access, err := tm.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.UserID)
	assert.Equal(t, "admin", access.Role)
	assert.Equal(t, TokenTypeAccess, access.TokenType)
	assert.NotEmpty(t, access.ID)

	refresh, err := tm.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, access.ID, refresh.ID)
	assert.Greater(t, refresh.Remaining(time.Now()), 24*time.Hour)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	tm := newTestTokenManager()
	pair, err := tm.GenerateTokenPair("user-1", "user")
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = tm.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExpiredToken(t *testing.T) {
	tm := newTestTokenManager()
	issued := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issued }
	pair, err := tm.GenerateTokenPair("user-1", "user")
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTamperedToken(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager("different", "different", time.Minute, time.Minute)
	pair, err := other.GenerateTokenPair("user-1", "admin")
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = tm.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
