package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/resilience"
)

func newClient(t *testing.T, h http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return backend.NewWithHTTP(srv.URL+"/api", resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 100, Target: t.Name()}),
		BaseBackoff: time.Millisecond,
		MaxAttempts: 2,
	}, zerolog.Nop())
}

func TestBundlesDecodesNumericIDsAndSendsToken(t *testing.T) {
	var auth string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bundles", r.URL.Path)
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `[{"id":5,"network":"mtn","title":"MTN 1GB","price":4.30},{"id":"x7","network":"at","title":"AT","price":"2"}]`)
	}))

	ctx := backend.WithToken(context.Background(), "tok")
	bundles, err := client.Bundles(ctx)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	require.Equal(t, backend.FlexString("5"), bundles[0].ID)
	require.True(t, bundles[0].Price.Equal(decimal.RequireFromString("4.3")))
	require.Equal(t, backend.FlexString("x7"), bundles[1].ID)
	require.Equal(t, "Bearer tok", auth)
}

func TestPlaceOrderSendsBothBundleKeysOnce(t *testing.T) {
	var calls int32
	var payload map[string]any
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"success":false,"message":"supplier down"}`)
	}))

	_, err := client.PlaceOrder(context.Background(), backend.PlaceOrderRequest{
		Network: "mtn", Beneficiary: "0541234567", BundleID: "5", UserEmail: "a@b.com",
	})
	require.ErrorIs(t, err, backend.ErrUnavailable)
	require.Equal(t, "supplier down", backend.MessageOf(err))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Equal(t, "5", payload["bundleId"])
	require.Equal(t, "5", payload["pa_data-bundle-packages"])
	require.Equal(t, "0541234567", payload["beneficiary"])
}

func TestPlaceOrderSuccessSignals(t *testing.T) {
	cases := map[string]bool{
		`{"success":true}`:                true,
		`{"transactionId":"T1"}`:          true,
		`{"order_id":42}`:                 true,
		`{"success":false,"message":"x"}`: false,
	}
	for body, want := range cases {
		var resp backend.PlaceOrderResponse
		require.NoError(t, json.Unmarshal([]byte(body), &resp))
		require.Equal(t, want, resp.Succeeded(), body)
	}
}

func TestVerifyPaymentAcceptsStatusSuccess(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","message":"ok"}`)
	}))
	resp, err := client.VerifyPayment(context.Background(), backend.VerifyPaymentRequest{Reference: "r1", Amount: "12"})
	require.NoError(t, err)
	require.True(t, resp.Verified())
}

func TestRejectedAndMalformed(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin/verify":
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"success":false,"message":"Unauthorized"}`)
		default:
			_, _ = io.WriteString(w, `{not json`)
		}
	}))

	ok, err := client.VerifyAdmin(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = client.SupplierBalance(context.Background())
	require.True(t, errors.Is(err, backend.ErrUnavailable))
}

func TestSupplierBalance(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"balance":1000.00,"currency":"GHS"}`)
	}))
	bal, err := client.SupplierBalance(context.Background())
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(1000)))
}

func TestAdminOrdersRequiresSuccessFlag(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"orders":[{"id":"o1","title":"MTN 1GB","price":10,"cost":8,"status":"Completed"}]}`)
	}))
	orders, err := client.AdminOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.True(t, orders[0].Cost.Valid)
	require.Equal(t, "Completed", orders[0].Status)
}
