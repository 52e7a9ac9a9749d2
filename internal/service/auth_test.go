package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken_AcceptsValidToken(t *testing.T) {
	auth := NewAuthService(nil, "test-secret", 1)

	signed := signToken(t, "test-secret", jwt.MapClaims{
		"user_id": "abc",
		"role":    "admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	claims, err := auth.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims["role"])
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	auth := NewAuthService(nil, "test-secret", 1)

	signed := signToken(t, "other-secret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := auth.ValidateToken(signed)
	require.Error(t, err)
}

func TestValidateToken_RejectsExpiredToken(t *testing.T) {
	auth := NewAuthService(nil, "test-secret", 1)

	signed := signToken(t, "test-secret", jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := auth.ValidateToken(signed)
	require.Error(t, err)
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	auth := NewAuthService(nil, "test-secret", 1)

	_, err := auth.ValidateToken("not.a.token")
	require.Error(t, err)
}
