// Package auth keeps the storefront session of a browser client and talks to the backend's
// login, signup and profile endpoints.
package auth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/state"
)

// Role values assigned by the backend.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the account record cached with the session.
type User = backend.User

// Session pairs the bearer token with its user record.
type Session struct {
	Token string
	User  User
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool {
	return s != nil && strings.EqualFold(s.User.Role, RoleAdmin)
}

// Store persists sessions in a client scope. Token and user are written and removed together.
type Store struct {
	now    func() time.Time
	skew   time.Duration
	logger zerolog.Logger
}

// NewStore constructs a session store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{now: time.Now, skew: 30 * time.Second, logger: logger.With().Str("component", "session").Logger()}
}

// Load returns the session of scope, or nil when there is none. Half-written sessions and
// expired tokens are discarded.
func (s *Store) Load(ctx context.Context, scope state.Scope) (*Session, error) {
	token, hasToken, err := scope.GetString(ctx, state.KeyToken)
	if err != nil {
		return nil, err
	}
	var user User
	hasUser, err := scope.GetJSON(ctx, state.KeyUser, &user)
	if err != nil && !isCorrupt(err) {
		return nil, err
	}
	valid := hasToken && strings.TrimSpace(token) != "" && hasUser && err == nil && user.Email != ""
	if valid && TokenExpired(token, s.now(), s.skew) {
		s.logger.Info().Str("namespace", scope.Namespace()).Msg("session token expired")
		valid = false
	}
	if !valid {
		if hasToken || hasUser {
			if err := s.Clear(ctx, scope); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return &Session{Token: token, User: user}, nil
}

// Save writes token and user atomically.
func (s *Store) Save(ctx context.Context, scope state.Scope, sess Session) error {
	data, err := json.Marshal(sess.User)
	if err != nil {
		return err
	}
	return scope.SetMany(ctx, map[string]string{
		state.KeyToken: sess.Token,
		state.KeyUser:  string(data),
	})
}

// UpdateUser replaces the cached user record, keeping the token.
func (s *Store) UpdateUser(ctx context.Context, scope state.Scope, user User) error {
	return scope.SetJSON(ctx, state.KeyUser, user)
}

// Clear removes the session.
func (s *Store) Clear(ctx context.Context, scope state.Scope) error {
	return scope.Delete(ctx, state.KeyToken, state.KeyUser)
}
