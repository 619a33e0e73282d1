package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1)
	tok, err := m.GenerateToken(ScopeDialogues)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, ScopeDialogues, claims.Scope)
	assert.Equal(t, OwnerSubject, claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestVerifyRejects(t *testing.T) {
	m := NewJWTManager("secret", 1)

	foreign, err := NewJWTManager("other-secret", 1).GenerateToken(ScopeDialogues)
	require.NoError(t, err)
	expired, err := NewJWTManager("secret", -1).GenerateToken(ScopeDialogues)
	require.NoError(t, err)
	otherIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: ScopeDialogues,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   OwnerSubject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: OwnerSubject},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"wrong issuer": otherIssuer,
		"no expiry":    noExpiry,
		"not a jwt":    "not-a-jwt",
		"empty":        "",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.VerifyToken(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
