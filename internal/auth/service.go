package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

// Backend is the subset of the storefront backend used for accounts.
type Backend interface {
	Login(ctx context.Context, email, password string) (backend.AuthResponse, error)
	Signup(ctx context.Context, name, email, password string) (backend.Result, error)
	GoogleAuth(ctx context.Context, credential string) (backend.AuthResponse, error)
	UserProfile(ctx context.Context, email string) (backend.User, error)
}

// Landing paths after authentication.
const (
	DashboardPath = "/dashboard.html"
	AdminPath     = "/admin.html"
	LoginPath     = "/login.html"
	HomePath      = "/index.html"
)

// LandingPath returns the page a user of role lands on.
func LandingPath(role string) string {
	if strings.EqualFold(role, RoleAdmin) {
		return AdminPath
	}
	return DashboardPath
}

// Service implements login, signup, Google sign-in, logout and profile refresh.
type Service struct {
	Backend Backend
	Store   *Store
	Logger  zerolog.Logger
}

// LoginResult is returned on a successful sign-in.
type LoginResult struct {
	Session  *Session
	Redirect string
	Notices  []common.Notice
}

// Login signs in with email and password, replacing any previous session.
func (s *Service) Login(ctx context.Context, scope state.Scope, email, password string) (LoginResult, error) {
	resp, err := s.Backend.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return LoginResult{}, authCallError("Login", err)
	}
	if !resp.Success || resp.Token == "" || resp.User == nil {
		return LoginResult{}, common.NewAppError(common.CodeUnauthorized, "Login failed: "+orDefault(resp.Message, "Invalid credentials"), http.StatusUnauthorized, nil)
	}
	return s.establish(ctx, scope, resp, "Login successful!")
}

// Google signs in with a Google identity credential.
func (s *Service) Google(ctx context.Context, scope state.Scope, credential string) (LoginResult, error) {
	if strings.TrimSpace(credential) == "" {
		return LoginResult{}, common.Validation("credential is required", nil)
	}
	resp, err := s.Backend.GoogleAuth(ctx, credential)
	if err != nil {
		return LoginResult{}, authCallError("Google Sign-In", err)
	}
	if !resp.Success || resp.Token == "" || resp.User == nil {
		return LoginResult{}, common.NewAppError(common.CodeUnauthorized, "Google Sign-In failed: "+orDefault(resp.Message, "Unknown error"), http.StatusUnauthorized, nil)
	}
	return s.establish(ctx, scope, resp, "Welcome back, "+orDefault(resp.User.Name, "User")+"!")
}

func (s *Service) establish(ctx context.Context, scope state.Scope, resp backend.AuthResponse, greeting string) (LoginResult, error) {
	if err := s.Store.Clear(ctx, scope); err != nil {
		return LoginResult{}, err
	}
	sess := Session{Token: resp.Token, User: *resp.User}
	if err := s.Store.Save(ctx, scope, sess); err != nil {
		return LoginResult{}, err
	}
	var notices common.Notices
	notices.Success(greeting)
	return LoginResult{Session: &sess, Redirect: DashboardPath, Notices: notices.List()}, nil
}

// Signup registers an account. The user signs in afterwards.
func (s *Service) Signup(ctx context.Context, name, email, password string) error {
	resp, err := s.Backend.Signup(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		return authCallError("Signup", err)
	}
	if !resp.Success {
		return common.NewAppError(common.CodeBadRequest, "Signup failed: "+orDefault(resp.Message, "Error occurred"), http.StatusBadRequest, nil)
	}
	return nil
}

// Logout discards the session.
func (s *Service) Logout(ctx context.Context, scope state.Scope) error {
	return s.Store.Clear(ctx, scope)
}

// Refresh reloads the user record from the backend so balance and role are current. Failures
// are logged and the cached session is returned unchanged.
func (s *Service) Refresh(ctx context.Context, scope state.Scope, sess *Session) *Session {
	if sess == nil {
		return nil
	}
	user, err := s.Backend.UserProfile(backend.WithToken(ctx, sess.Token), sess.User.Email)
	if err != nil {
		s.Logger.Warn().Err(err).Str("email", sess.User.Email).Msg("refresh user profile")
		return sess
	}
	if user.Email == "" {
		user.Email = sess.User.Email
	}
	if err := s.Store.UpdateUser(ctx, scope, user); err != nil {
		s.Logger.Warn().Err(err).Msg("persist refreshed profile")
		return sess
	}
	return &Session{Token: sess.Token, User: user}
}

func authCallError(action string, err error) error {
	if msg := backend.MessageOf(err); msg != "" && errors.Is(err, backend.ErrRejected) {
		return common.NewAppError(common.CodeUnauthorized, action+" error: "+msg, http.StatusUnauthorized, err)
	}
	return common.Upstream(action+" error: Could not connect to server", err)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func isCorrupt(err error) bool { return errors.Is(err, state.ErrCorrupt) }
