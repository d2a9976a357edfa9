package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 24)

	tokenString, err := m.GenerateToken(42, "alice", "user")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user", claims.Role)
}

func TestGenerateTokenWithShortTTL(t *testing.T) {
	m := NewJWTManager("test-secret", 24)

	tokenString, err := m.GenerateTokenWithTTL(42, "alice", "user", 5*time.Minute)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	// 过期时间应当落在指定的短有效期内，而不是沿用 24 小时的 access token 时长
	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, 4*time.Minute)
	assert.LessOrEqual(t, remaining, 5*time.Minute)
}

func TestVerifyExpiredTokenFails(t *testing.T) {
	m := NewJWTManager("test-secret", 24)

	tokenString, err := m.GenerateTokenWithTTL(42, "alice", "user", -time.Minute)
	require.NoError(t, err)

	_, err = m.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 24)
	other := NewJWTManager("another-secret", 24)

	tokenString, err := m.GenerateToken(42, "alice", "user")
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenString)
	assert.Error(t, err)
}
