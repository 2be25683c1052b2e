package checkout

import (
	"context"
	"net/http"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/cart"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/history"
	"github.com/noah-isme/bundlehub/internal/state"
)

type fakeOrders struct {
	resp  backend.PlaceOrderResponse
	err   error
	calls []backend.PlaceOrderRequest
}

func (f *fakeOrders) PlaceOrder(_ context.Context, req backend.PlaceOrderRequest) (backend.PlaceOrderResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

type fakeProfiles struct{ refreshed int }

func (f *fakeProfiles) Refresh(_ context.Context, _ state.Scope, sess *auth.Session) *auth.Session {
	f.refreshed++
	next := *sess
	next.User.Balance = decimal.NewFromInt(8)
	return &next
}

type fixture struct {
	finalizer *Finalizer
	orders    *fakeOrders
	profiles  *fakeProfiles
	history   *history.RedisStore
	carts     *cart.Store
	scope     state.Scope
}

func newFixture(t *testing.T, resp backend.PlaceOrderResponse, err error) fixture {
	t.Helper()
	mr, merr := miniredis.Run()
	require.NoError(t, merr)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	scope, serr := state.NewStore(client, "t", 0).Client("client-abc")
	require.NoError(t, serr)

	fx := fixture{
		orders:   &fakeOrders{resp: resp, err: err},
		profiles: &fakeProfiles{},
		history:  &history.RedisStore{Client: client, Prefix: "t"},
		carts:    cart.NewStore(zerolog.Nop()),
		scope:    scope,
	}
	fx.finalizer = &Finalizer{
		Orders:   fx.orders,
		Profiles: fx.profiles,
		Cart:     fx.carts,
		History:  fx.history,
		Logger:   zerolog.Nop(),
	}
	return fx
}

func member() *auth.Session {
	return &auth.Session{Token: "tok", User: auth.User{Email: "m@x.io", Role: auth.RoleUser, Balance: decimal.NewFromInt(20)}}
}

func TestFinalizeMemberSuccess(t *testing.T) {
	fx := newFixture(t, backend.PlaceOrderResponse{TransactionID: "TX-1"}, nil)
	ctx := context.Background()
	_, _, err := fx.carts.Add(ctx, fx.scope, cart.Item{ID: "7", Price: 10})
	require.NoError(t, err)
	_, _, err = fx.carts.Add(ctx, fx.scope, cart.Item{ID: "8", Price: 11})
	require.NoError(t, err)

	res, err := fx.finalizer.Finalize(ctx, fx.scope, member(), Request{
		BundleID: "7", Title: "MTN 1GB", Price: 10, Phone: "0541234567", Network: "mtn",
	})
	require.NoError(t, err)
	require.Equal(t, "TX-1", res.OrderID)
	require.Equal(t, "/dashboard.html", res.Redirect)
	require.EqualValues(t, 2500, res.RedirectDelayMs)
	require.NotNil(t, res.User)
	require.True(t, res.User.Balance.Equal(decimal.NewFromInt(8)))
	require.Equal(t, 1, fx.profiles.refreshed)

	require.Len(t, fx.orders.calls, 1)
	call := fx.orders.calls[0]
	require.Equal(t, "m@x.io", call.UserEmail)
	require.Equal(t, "0541234567", call.Beneficiary)
	require.Equal(t, "7", call.BundleID)

	items, err := fx.carts.List(ctx, fx.scope)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "8", items[0].ID)

	rows, err := fx.history.ListByEmail(ctx, "m@x.io", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "TX-1", rows[0].ID)
}

func TestFinalizeGuestUsesGuestEmail(t *testing.T) {
	fx := newFixture(t, backend.PlaceOrderResponse{OrderID: "55"}, nil)
	res, err := fx.finalizer.Finalize(context.Background(), fx.scope, nil, Request{
		BundleID: "7", Price: 10, Phone: "0241234567", Network: "mtn", Prepaid: true, GuestEmail: "a@b.com",
	})
	require.NoError(t, err)
	require.Equal(t, "/index.html?purchase=success", res.Redirect)
	require.Nil(t, res.User)
	require.Zero(t, fx.profiles.refreshed)
	require.Equal(t, "a@b.com", fx.orders.calls[0].UserEmail)
}

func TestFinalizeBackendMessageVerbatim(t *testing.T) {
	fx := newFixture(t, backend.PlaceOrderResponse{Message: "Invalid beneficiary"}, nil)
	res, err := fx.finalizer.Finalize(context.Background(), fx.scope, member(), Request{BundleID: "7", Price: 10})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeOrderFailed, appErr.Code)
	require.Equal(t, "Order failed: Invalid beneficiary", appErr.Message)
	require.Equal(t, []common.Notice{{Level: common.NoticeError, Message: "Order failed: Invalid beneficiary"}}, res.Notices)
	require.Zero(t, fx.profiles.refreshed)
}

func TestFinalizeRejectedStatus(t *testing.T) {
	fx := newFixture(t, backend.PlaceOrderResponse{}, &backend.StatusError{Endpoint: "place_order", StatusCode: http.StatusBadRequest, Message: "Out of stock"})
	_, err := fx.finalizer.Finalize(context.Background(), fx.scope, member(), Request{BundleID: "7", Price: 10})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, "Order failed: Out of stock", appErr.Message)
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
}

func TestFinalizeNetworkErrorIsGeneric(t *testing.T) {
	fx := newFixture(t, backend.PlaceOrderResponse{}, backend.ErrUnavailable)
	_, err := fx.finalizer.Finalize(context.Background(), fx.scope, member(), Request{BundleID: "7", Price: 10})
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, GenericFailureMessage, appErr.Message)
	require.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
}
