// Package middleware holds HTTP middleware shared by the storefront routes.
package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/obs"
)

// ClientHeader carries the browser client identifier for non-cookie callers.
const ClientHeader = "X-Client-ID"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ClientResolver identifies the browser client that owns the per-client state. The header wins
// over the cookie; a client presenting neither is issued a fresh identifier cookie.
type ClientResolver struct {
	CookieName string
	Secure     bool
	SameSite   http.SameSite
	MaxAge     time.Duration
}

// Middleware resolves or issues the client id and stores it on the request context.
func (c ClientResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := c.Resolve(r)
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, c.cookie(id))
		}
		w.Header().Set(ClientHeader, id)
		obs.AnnotateClient(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(common.WithClientID(r.Context(), id)))
	})
}

// Resolve returns a well-formed identifier from the header or cookie, or "".
func (c ClientResolver) Resolve(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientHeader)); clientIDPattern.MatchString(id) {
		return id
	}
	if cookie, err := r.Cookie(c.cookieName()); err == nil {
		if id := strings.TrimSpace(cookie.Value); clientIDPattern.MatchString(id) {
			return id
		}
	}
	return ""
}

func (c ClientResolver) cookieName() string {
	if c.CookieName == "" {
		return "bh_client"
	}
	return c.CookieName
}

func (c ClientResolver) cookie(id string) *http.Cookie {
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	sameSite := c.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     c.cookieName(),
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}
