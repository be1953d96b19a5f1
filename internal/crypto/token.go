package crypto

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the exp claim from a JWT without verifying the
// signature. The server signs the token; the client only needs to know when
// to refresh it.
//
// ok is false when the token has no usable expiry.
func TokenExpiry(tokenString string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpiringSoon reports whether the token expires within the window. A
// token without an expiry never reports as expiring.
func TokenExpiringSoon(tokenString string, window time.Duration) bool {
	exp, ok := TokenExpiry(tokenString)
	if !ok {
		return false
	}
	return time.Until(exp) <= window
}
