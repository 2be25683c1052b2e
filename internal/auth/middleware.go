package auth

import (
	"context"
	"net/http"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

type sessionKey struct{}

// WithSession stores sess on ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext returns the session attached to ctx, or nil for guests.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// Middleware binds the client scope and session of each request.
type Middleware struct {
	States   *state.Store
	Sessions *Store
}

// Attach resolves the client scope from the client id and loads its session. The session
// token is forwarded on backend calls made with the request context.
func (m Middleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, _ := common.ClientID(r.Context())
		scope, err := m.States.Client(clientID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "missing client identifier", nil)
			return
		}
		ctx := state.WithScope(r.Context(), scope)
		sess, err := m.Sessions.Load(ctx, scope)
		if err != nil {
			common.WriteError(w, common.NewAppError(common.CodeInternal, "session store unavailable", http.StatusServiceUnavailable, err))
			return
		}
		if sess != nil {
			ctx = WithSession(ctx, sess)
			ctx = backend.WithToken(ctx, sess.Token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects guests.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "Please log in to continue", map[string]any{"redirect": LoginPath})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects sessions without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).IsAdmin() {
			common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "administrator access required", map[string]any{"redirect": HomePath})
			return
		}
		next.ServeHTTP(w, r)
	}))
}
