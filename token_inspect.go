package archive

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the expiry claim from a bearer token without verifying
// its signature. The server stays the authority on token validity; this is
// only a local hint so the client can refresh before a verify that is
// guaranteed to fail. The second return is false for opaque tokens, tokens
// without an exp claim, or anything that does not parse as a JWT.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// TokenNeedsRefresh reports whether the token expires within leeway from
// now. Tokens with no readable expiry never need a proactive refresh; they
// go through the normal verify-then-401 path instead.
func TokenNeedsRefresh(token string, leeway time.Duration) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return time.Now().Add(leeway).After(exp)
}
