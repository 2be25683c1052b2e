package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundlehub/internal/common"
)

func captureClient(t *testing.T, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var seen string
	h := ClientResolver{CookieName: "bh"}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = common.ClientID(r.Context())
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return seen, rr
}

func TestClientResolverPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ClientHeader, "header-client-1")
	req.AddCookie(&http.Cookie{Name: "bh", Value: "cookie-client-1"})

	id, rr := captureClient(t, req)
	require.Equal(t, "header-client-1", id)
	require.Empty(t, rr.Result().Cookies())
}

func TestClientResolverUsesCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "bh", Value: "cookie-client-1"})
	id, _ := captureClient(t, req)
	require.Equal(t, "cookie-client-1", id)
}

func TestClientResolverIssuesCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ClientHeader, "bad id!")

	id, rr := captureClient(t, req)
	require.NotEmpty(t, id)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "bh", cookies[0].Name)
	require.Equal(t, id, cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)
	require.Equal(t, id, rr.Header().Get(ClientHeader))
}
