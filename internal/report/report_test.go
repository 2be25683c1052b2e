package report

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/backend"
)

func purchase(title, price, cost string) backend.Purchase {
	p := backend.Purchase{Title: title, Price: decimal.RequireFromString(price)}
	if cost != "" {
		p.Cost = decimal.NewNullDecimal(decimal.RequireFromString(cost))
	}
	return p
}

func TestComputeTotalsAndRanking(t *testing.T) {
	now := time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)
	rep := Compute([]backend.Purchase{
		purchase("MTN 1GB", "10.5", "8"),
		purchase("Telecel 2GB", "15", "12"),
		purchase("MTN 5GB", "35", "30"),
		purchase("MTN 1GB", "10.5", ""),
	}, now)

	require.Equal(t, 4, rep.Transactions)
	require.Equal(t, "71", rep.Revenue.String())
	// 8 + 12 + 30 + 10.5*0.8
	require.Equal(t, "58.4", rep.Cost.String())
	require.Equal(t, "12.6", rep.Profit.String())
	require.Equal(t, []BundleSales{
		{Title: "MTN 1GB", Sales: 2},
		{Title: "MTN 5GB", Sales: 1},
		{Title: "Telecel 2GB", Sales: 1},
	}, rep.TopBundles)
	require.Equal(t, now, rep.GeneratedAt)
}

func TestComputeEmpty(t *testing.T) {
	rep := Compute(nil, time.Now())
	require.Zero(t, rep.Transactions)
	require.True(t, rep.Profit.IsZero())
	require.NotNil(t, rep.TopBundles)
}

type fakeOrders struct {
	orders []backend.Purchase
	err    error
}

func (f fakeOrders) AdminOrders(context.Context) ([]backend.Purchase, error) { return f.orders, f.err }

func newStore(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Store{Client: client, Prefix: "test", TTL: time.Hour}
}

func TestProcessorStoresLatest(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	p := Processor{Orders: fakeOrders{orders: []backend.Purchase{purchase("MTN 1GB", "10", "")}}, Store: store, Logger: zerolog.Nop()}
	task, err := NewSalesTask("admin@example.com")
	require.NoError(t, err)
	require.Equal(t, TypeSalesReport, task.Type())
	require.NoError(t, p.ProcessTask(ctx, task))

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, 1, latest.Transactions)
	require.Equal(t, "admin@example.com", latest.RequestedBy)
	require.Equal(t, "2", latest.Profit.String())
}

func TestProcessorBackendFailureRetries(t *testing.T) {
	p := Processor{Orders: fakeOrders{err: errors.New("down")}, Store: newStore(t), Logger: zerolog.Nop()}
	task, err := NewSalesTask("")
	require.NoError(t, err)
	err = p.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessorBadPayloadSkipsRetry(t *testing.T) {
	p := Processor{Orders: fakeOrders{}, Store: newStore(t), Logger: zerolog.Nop()}
	err := p.ProcessTask(context.Background(), asynq.NewTask(TypeSalesReport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
