package cart

import (
	"context"
	"net/http"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/catalog"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/feasibility"
	"github.com/noah-isme/bundlehub/internal/state"
)

func newScope(t *testing.T) (state.Scope, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	scope, err := state.NewStore(client, "t", 0).Client("client-123")
	require.NoError(t, err)
	return scope, mr
}

type fakeCatalog map[string]catalog.Bundle

func (f fakeCatalog) Get(_ context.Context, id string, _ bool) (catalog.Bundle, error) {
	b, ok := f[id]
	if !ok {
		return catalog.Bundle{}, common.NewAppError(common.CodeNotFound, "bundle not found", http.StatusNotFound, nil)
	}
	return b, nil
}

type fixedBalance decimal.Decimal

func (f fixedBalance) SupplierBalance(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

func newService(balance string) *Service {
	return &Service{
		Store: NewStore(zerolog.Nop()),
		Catalog: fakeCatalog{
			"1": {ID: "1", Title: "MTN 1GB", Network: "mtn", Price: 12},
			"2": {ID: "2", Title: "AT 5GB", Network: "at", Price: 46},
		},
		Gate: &feasibility.Gate{
			Source: fixedBalance(decimal.RequireFromString(balance)),
			Logger: zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}
}

func TestStoreAddIsIdempotentByID(t *testing.T) {
	scope, _ := newScope(t)
	store := NewStore(zerolog.Nop())
	ctx := context.Background()

	added, items, err := store.Add(ctx, scope, Item{ID: "1", Price: 12})
	require.NoError(t, err)
	require.True(t, added)
	require.Len(t, items, 1)

	added, items, err = store.Add(ctx, scope, Item{ID: "1", Price: 99})
	require.NoError(t, err)
	require.False(t, added)
	require.Len(t, items, 1)
	require.EqualValues(t, 12, items[0].Price)
}

func TestStoreKeepsOrderAndRemoves(t *testing.T) {
	scope, _ := newScope(t)
	store := NewStore(zerolog.Nop())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, _, err := store.Add(ctx, scope, Item{ID: id})
		require.NoError(t, err)
	}
	items, err := store.Remove(ctx, scope, "b")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, ids(items))

	items, err = store.List(ctx, scope)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, ids(items))
}

func TestStoreCorruptCartReadsEmpty(t *testing.T) {
	scope, mr := newScope(t)
	require.NoError(t, mr.Set("t:client:client-123:cart", "not json"))
	items, err := NewStore(zerolog.Nop()).List(context.Background(), scope)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestServiceAddDuplicateNotice(t *testing.T) {
	scope, _ := newScope(t)
	svc := newService("500")
	ctx := context.Background()

	view, err := svc.Add(ctx, scope, "1", true)
	require.NoError(t, err)
	require.Equal(t, 1, view.Count)

	view, err = svc.Add(ctx, scope, "1", true)
	require.NoError(t, err)
	require.Equal(t, 1, view.Count)
	require.Contains(t, view.Notices, common.Notice{Level: common.NoticeInfo, Message: AlreadyInCartMessage})

	view, err = svc.Add(ctx, scope, "2", true)
	require.NoError(t, err)
	require.Equal(t, 2, view.Count)
	require.EqualValues(t, 58, view.Total)
}

func TestServiceAddBlockedBySupplierBalance(t *testing.T) {
	scope, _ := newScope(t)
	svc := newService("30")

	view, err := svc.Add(context.Background(), scope, "2", true)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInfeasible, appErr.Code)
	require.Contains(t, view.Notices, common.Notice{Level: common.NoticeWarning, Message: feasibility.MaintenanceMessage})

	cart, err := svc.Get(context.Background(), scope)
	require.NoError(t, err)
	require.Zero(t, cart.Count)
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
