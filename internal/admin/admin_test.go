package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/report"
	"github.com/noah-isme/bundlehub/internal/state"
)

type fakeBackend struct {
	status     []string
	statusRes  backend.Result
	balanceErr error
	admin      bool
}

func (f *fakeBackend) SupplierBalance(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(120), f.balanceErr
}
func (f *fakeBackend) AdminStats(context.Context) (backend.Stats, error) { return backend.Stats{}, nil }
func (f *fakeBackend) AdminOrders(context.Context) ([]backend.Purchase, error) {
	return []backend.Purchase{
		{ID: "1", Status: "Completed"},
		{ID: "2", Status: ""},
		{ID: "3", Status: "processing"},
		{ID: "4", Status: "Failed"},
	}, nil
}
func (f *fakeBackend) AdminUsers(context.Context) ([]backend.User, error) { return nil, nil }
func (f *fakeBackend) UpdateOrderStatus(_ context.Context, id, status string) (backend.Result, error) {
	f.status = append(f.status, id+"="+status)
	return f.statusRes, nil
}
func (f *fakeBackend) UpdateUserBalance(context.Context, string, decimal.Decimal) (backend.Result, error) {
	return backend.Result{Success: true}, nil
}
func (f *fakeBackend) VerifyAdmin(context.Context, string) (bool, error) { return f.admin, nil }

type fakeCatalog struct{ refreshed int }

func (f *fakeCatalog) Wholesale(context.Context) ([]backend.Bundle, error) {
	return []backend.Bundle{
		{ID: "1", Title: "MTN 1GB", Network: "MTN", Price: decimal.NewFromInt(10)},
		{ID: "2", Title: "AT 2GB", Network: "at", Price: decimal.NewFromInt(20)},
	}, nil
}
func (f *fakeCatalog) Refresh(context.Context) error { f.refreshed++; return nil }

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task *asynq.Task) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	f.tasks = append(f.tasks, task)
	return "t1", len(f.tasks) == 1, nil
}

type env struct {
	handler *Handler
	backend *fakeBackend
	catalog *fakeCatalog
	queue   *fakeQueue
	reports report.Store
	router  http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		backend: &fakeBackend{statusRes: backend.Result{Success: true}, admin: true},
		catalog: &fakeCatalog{},
		queue:   &fakeQueue{},
		reports: report.Store{Client: client, Prefix: "test", TTL: time.Hour},
	}
	prices := pricing.NewStore(state.NewStore(client, "test", time.Hour).Global(), zerolog.Nop())
	e.handler = &Handler{Service: &Service{
		Backend: e.backend,
		Prices:  prices,
		Catalog: e.catalog,
		Queue:   e.queue,
		Reports: e.reports,
		Logger:  zerolog.Nop(),
	}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := &auth.Session{Token: "tok", User: auth.User{Email: "admin@example.com", Role: "admin"}}
			next.ServeHTTP(w, req.WithContext(auth.WithSession(req.Context(), sess)))
		})
	})
	r.Use(auth.RequireAdmin)
	r.Get("/markup", e.handler.Markup)
	r.Put("/markup", e.handler.SaveMarkup)
	r.Get("/prices", e.handler.Prices)
	r.Put("/prices/{bundleId}", e.handler.SetPrice)
	r.Delete("/prices/{bundleId}", e.handler.ClearPrice)
	r.Post("/catalog/refresh", e.handler.RefreshCatalog)
	r.Get("/balance", e.handler.Balance)
	r.Get("/orders", e.handler.Orders)
	r.Post("/orders/{id}/status", e.handler.OrderStatus)
	r.Post("/users/balance", e.handler.UserBalance)
	r.Get("/verify", e.handler.Verify)
	r.Post("/reports", e.handler.RequestReport)
	r.Get("/reports/latest", e.handler.LatestReport)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestNormalizeStatus(t *testing.T) {
	for in, want := range map[string]string{"completed": "Completed", "FAILED": "Failed", " processing ": "Processing"} {
		got, err := NormalizeStatus(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	for _, bad := range []string{"", "pending", "done"} {
		_, err := NormalizeStatus(bad)
		require.ErrorIs(t, err, ErrInvalidStatus)
	}
}

func TestMarkupRoundTrip(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/markup", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"flat":1.5,"percent":0.05,"publicSurcharge":2,"minProfit":1}}`, rr.Body.String())

	rr = e.do(t, http.MethodPut, "/markup", `{"flat":2,"percent":0.1,"publicSurcharge":3,"minProfit":1}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodGet, "/markup", "")
	require.Contains(t, rr.Body.String(), `"percent":0.1`)

	rr = e.do(t, http.MethodPut, "/markup", `{"flat":-1,"percent":0.1,"publicSurcharge":3,"minProfit":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPriceControlOverrides(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodPut, "/prices/1", `{"price":"15.5"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"override":true`)

	rr = e.do(t, http.MethodGet, "/prices", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []PriceRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	// 10 + max(10*0.05+1.5, 1) = 12
	require.EqualValues(t, 12, body.Data[0].FormulaPrice)
	// override 15.5 + surcharge 2 = 17.5, rounds to 18
	require.EqualValues(t, 18, body.Data[0].PublicPrice)
	require.NotNil(t, body.Data[0].CustomPrice)
	require.Nil(t, body.Data[1].CustomPrice)
	require.Equal(t, "at", body.Data[1].Network)

	rr = e.do(t, http.MethodDelete, "/prices/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Price reset to formula standard.")
}

func TestOrderStatusValidation(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodPost, "/orders/42/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"42=Completed"}, e.backend.status)

	rr = e.do(t, http.MethodPost, "/orders/42/status", `{"status":"shipped"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Len(t, e.backend.status, 1)

	e.backend.statusRes = backend.Result{Success: false, Message: "order not found"}
	rr = e.do(t, http.MethodPost, "/orders/43/status", `{"status":"failed"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "Failed to update status: order not found")
}

func TestUserBalance(t *testing.T) {
	e := newEnv(t)
	rr := e.do(t, http.MethodPost, "/users/balance", `{"email":"u@example.com","balance":25}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, http.MethodPost, "/users/balance", `{"email":"u@example.com","balance":-1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBalanceUpstreamFailure(t *testing.T) {
	e := newEnv(t)
	e.backend.balanceErr = errors.New("timeout")
	rr := e.do(t, http.MethodGet, "/balance", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestVerify(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/verify", "").Code)
	e.backend.admin = false
	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/verify", "").Code)
}

func TestReports(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/reports/latest", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, http.MethodPost, "/reports", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, e.queue.tasks, 1)
	require.Equal(t, report.TypeSalesReport, e.queue.tasks[0].Type())

	require.NoError(t, e.reports.Save(context.Background(), report.Report{Transactions: 3}))
	rr = e.do(t, http.MethodGet, "/reports/latest", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"transactions":3`)

	e.queue.err = errors.New("redis down")
	rr = e.do(t, http.MethodPost, "/reports", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRefreshCatalog(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/catalog/refresh", "").Code)
	require.Equal(t, 1, e.catalog.refreshed)
}

func TestOrdersFilterAndPage(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, http.MethodGet, "/orders?status=processing", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data       []backend.Purchase `json:"data"`
		Pagination struct {
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, 2, body.Pagination.TotalItems)

	rr = e.do(t, http.MethodGet, "/orders?page=2&limit=3", "")
	body.Data = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, backend.FlexString("4"), body.Data[0].ID)
}
