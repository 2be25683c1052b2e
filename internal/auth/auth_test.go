package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

type fakeBackend struct {
	login     backend.AuthResponse
	loginErr  error
	profile   backend.User
	profileEr error
}

func (f *fakeBackend) Login(context.Context, string, string) (backend.AuthResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeBackend) Signup(context.Context, string, string, string) (backend.Result, error) {
	return backend.Result{Success: true}, nil
}

func (f *fakeBackend) GoogleAuth(context.Context, string) (backend.AuthResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeBackend) UserProfile(ctx context.Context, _ string) (backend.User, error) {
	return f.profile, f.profileEr
}

func newScope(t *testing.T) (state.Scope, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	scope, err := state.NewStore(client, "t", 0).Client("c1")
	require.NoError(t, err)
	return scope, mr
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().Subject("u1").Expiration(exp).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("backend-secret")))
	require.NoError(t, err)
	return string(signed)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	require.True(t, TokenExpired(signedToken(t, now.Add(-time.Hour)), now, 0))
	require.False(t, TokenExpired(signedToken(t, now.Add(time.Hour)), now, 0))
	require.False(t, TokenExpired("opaque-token", now, 0))
}

func TestStoreDiscardsUserWithoutToken(t *testing.T) {
	scope, mr := newScope(t)
	ctx := context.Background()
	require.NoError(t, scope.SetJSON(ctx, state.KeyUser, User{Email: "a@b.com"}))

	sess, err := NewStore(zerolog.Nop()).Load(ctx, scope)
	require.NoError(t, err)
	require.Nil(t, sess)
	require.False(t, mr.Exists("t:client:c1:user"))
}

func TestStoreDiscardsExpiredToken(t *testing.T) {
	scope, mr := newScope(t)
	ctx := context.Background()
	store := NewStore(zerolog.Nop())
	require.NoError(t, store.Save(ctx, scope, Session{Token: signedToken(t, time.Now().Add(-time.Hour)), User: User{Email: "a@b.com"}}))

	sess, err := store.Load(ctx, scope)
	require.NoError(t, err)
	require.Nil(t, sess)
	require.False(t, mr.Exists("t:client:c1:token"))
	require.False(t, mr.Exists("t:client:c1:user"))
}

func TestLoginPersistsSession(t *testing.T) {
	scope, _ := newScope(t)
	ctx := context.Background()
	fb := &fakeBackend{login: backend.AuthResponse{
		Success: true,
		Token:   "opaque",
		User:    &backend.User{Email: "a@b.com", Name: "Ama", Role: RoleUser, Balance: decimal.NewFromInt(20)},
	}}
	svc := &Service{Backend: fb, Store: NewStore(zerolog.Nop()), Logger: zerolog.Nop()}

	res, err := svc.Login(ctx, scope, "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, DashboardPath, res.Redirect)

	sess, err := svc.Store.Load(ctx, scope)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "opaque", sess.Token)
	require.True(t, sess.User.Balance.Equal(decimal.NewFromInt(20)))
}

func TestLoginFailureMessages(t *testing.T) {
	scope, _ := newScope(t)
	svc := &Service{Backend: &fakeBackend{login: backend.AuthResponse{Success: false}}, Store: NewStore(zerolog.Nop())}
	_, err := svc.Login(context.Background(), scope, "a@b.com", "pw")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "Login failed: Invalid credentials", appErr.Message)

	svc.Backend = &fakeBackend{loginErr: backend.ErrUnavailable}
	_, err = svc.Login(context.Background(), scope, "a@b.com", "pw")
	appErr, ok = common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeUpstream, appErr.Code)
}

func TestRefreshKeepsSessionOnFailure(t *testing.T) {
	scope, _ := newScope(t)
	ctx := context.Background()
	store := NewStore(zerolog.Nop())
	sess := &Session{Token: "t", User: User{Email: "a@b.com", Role: RoleUser}}
	require.NoError(t, store.Save(ctx, scope, *sess))

	svc := &Service{Backend: &fakeBackend{profileEr: errors.New("down")}, Store: store, Logger: zerolog.Nop()}
	require.Same(t, sess, svc.Refresh(ctx, scope, sess))

	svc.Backend = &fakeBackend{profile: User{Email: "a@b.com", Role: RoleAdmin, Balance: decimal.NewFromInt(5)}}
	refreshed := svc.Refresh(ctx, scope, sess)
	require.True(t, refreshed.IsAdmin())
	require.Equal(t, AdminPath, LandingPath(refreshed.User.Role))

	loaded, err := store.Load(ctx, scope)
	require.NoError(t, err)
	require.True(t, loaded.IsAdmin())
}
