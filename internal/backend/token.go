// ABOUTME: Local inspection of the configured bearer token
// ABOUTME: Reads the JWT exp claim without verifying the signature

package backend

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether token is a JWT whose exp claim is before now.
// Opaque (non-JWT) tokens and tokens without exp are never considered expired;
// the backend remains the authority on their validity.
func tokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
