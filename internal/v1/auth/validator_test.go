package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "validator-test-secret"

func sign(t *testing.T, secret string, claims AdminClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenAcceptsCorrectScopeAndSecret(t *testing.T) {
	v := NewValidator(testSecret)
	token := sign(t, testSecret, AdminClaims{
		Scope:            "preseed:write",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "preseed:write", claims.Scope)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	v := NewValidator(testSecret)
	token := sign(t, "a-different-secret", AdminClaims{Scope: "preseed:write"})

	_, err := v.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenRejectsMissingScope(t *testing.T) {
	v := NewValidator(testSecret)
	token := sign(t, testSecret, AdminClaims{Scope: "something:else"})

	_, err := v.ValidateToken(token)
	require.Error(t, err)
	require.Contains(t, err.Error(), "preseed:write")
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	v := NewValidator(testSecret)
	token := sign(t, testSecret, AdminClaims{
		Scope:            "preseed:write",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})

	_, err := v.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenRejectsNonHMACAlgorithm(t *testing.T) {
	v := NewValidator(testSecret)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, AdminClaims{Scope: "preseed:write"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.Error(t, err)
}
