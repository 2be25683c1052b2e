package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePaginationDefaults(t *testing.T) {
	page, perPage := ParsePagination(httptest.NewRequest("GET", "/x?page=-1&limit=abc", nil), 20)
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got, meta := Paginate(items, 2, 2)
	require.Equal(t, []int{3, 4}, got)
	require.Equal(t, Pagination{Page: 2, PerPage: 2, TotalItems: 5}, meta)

	got, _ = Paginate(items, 3, 2)
	require.Equal(t, []int{5}, got)

	got, _ = Paginate(items, 9, 2)
	require.Empty(t, got)
}
