package main

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	errUnauthorized = errors.New("sign in first")
	errForbidden    = errors.New("not allowed")
)

// Identity is the signed-in user. Its fields fill contact details the form
// leaves blank.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// apply sets blank contact fields from the identity.
func (id Identity) apply(fields map[string]string) {
	for key, value := range map[string]string{
		"user_id":   id.UserID,
		"your_name": id.Name,
		"email_id":  id.Email,
		"mobile_no": id.Phone,
	} {
		if value != "" && fields[key] == "" {
			fields[key] = value
		}
	}
}

type identityClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone_number"`
	jwt.RegisteredClaims
}

// IdentityVerifier checks HMAC signed session tokens issued by the sign-in
// provider in front of the app.
type IdentityVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewIdentityVerifier(secret string) *IdentityVerifier {
	return &IdentityVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
}

// Verify parses a bearer token. The token must carry a subject and an expiry.
func (v *IdentityVerifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, errUnauthorized
	}
	var claims identityClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	if claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: token has no expiry", errUnauthorized)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", errUnauthorized)
	}
	return Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Phone:  claims.Phone,
	}, nil
}
