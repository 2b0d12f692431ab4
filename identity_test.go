package main

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityApply(t *testing.T) {
	fields := map[string]string{"your_name": "Form Name", "email_id": ""}
	Identity{UserID: "u-2", Name: "Header Name", Email: "h@example.com"}.apply(fields)
	assert.Equal(t, map[string]string{
		"your_name": "Form Name",
		"email_id":  "h@example.com",
		"user_id":   "u-2",
	}, fields)
}

func TestIdentityVerifier(t *testing.T) {
	v := NewIdentityVerifier("s3cret")
	hour := jwt.NewNumericDate(time.Now().Add(time.Hour))

	id, err := v.Verify(signToken(t, "s3cret", identityClaims{
		Name:             "Asha",
		Email:            "asha@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: hour},
	}))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Name: "Asha", Email: "asha@example.com"}, id)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: " "},
		{name: "garbage", token: "not.a.token"},
		{name: "wrong secret", token: signToken(t, "nope", identityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: hour}})},
		{name: "expired", token: signToken(t, "s3cret", identityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}})},
		{name: "no expiry", token: signToken(t, "s3cret", identityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}})},
		{name: "no subject", token: signToken(t, "s3cret", identityClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: hour}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, errUnauthorized)
		})
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: hour},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.ErrorIs(t, err, errUnauthorized, "unsigned tokens are rejected")
}
