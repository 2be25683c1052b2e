package auth

import (
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenExpired reports whether token is a JWT whose exp claim lies before now. Opaque tokens
// and JWTs without exp never expire here; the backend remains the authority on validity.
// The signature is not checked because the signing key belongs to the backend.
func TokenExpired(token string, now time.Time, skew time.Duration) bool {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return false
	}
	tok, err := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return false
	}
	exp := tok.Expiration()
	if exp.IsZero() {
		return false
	}
	return now.After(exp.Add(skew))
}
