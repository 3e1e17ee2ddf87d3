// ABOUTME: Session token helpers for the client side of the messaging core.
// ABOUTME: Extracts identity claims from the bearer token and mints dev tokens.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingClaim = errors.New("missing required claim")
)

// Identity is what the client can learn about the session from its own
// bearer token. The token is issued and verified by the backend; the
// client never holds the signing secret, so the claims are extracted
// without signature verification and used for display and routing only.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// ParseIdentity extracts the user id and expiry from a session token.
func ParseIdentity(tokenString string) (*Identity, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	id := &Identity{UserID: sub}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

// MintToken creates an HS256 session token for the given user. Intended
// for development setups and tests that run against a local backend
// sharing the secret.
func MintToken(secret []byte, userID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
