// Package auth validates the bearer token the REST preseed bridge requires
// on every write. Grounded on the teacher's validator.go for the
// Validator/ValidateToken shape, simplified from JWKS/Auth0 verification to
// a single HMAC secret: the bridge is a single operator-triggered admin
// endpoint, not a multi-tenant login surface, so there is no external
// identity provider to federate with.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims is the claim set a preseed-bridge bearer token must carry.
type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Validator checks HMAC-signed admin tokens against a shared secret.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator from the shared HMAC secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ValidateToken parses and verifies tokenString, requiring the
// "preseed:write" scope.
func (v *Validator) ValidateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: token is invalid")
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok {
		return nil, errors.New("auth: unexpected claims type")
	}
	if claims.Scope != "preseed:write" {
		return nil, errors.New("auth: token missing preseed:write scope")
	}
	return claims, nil
}
