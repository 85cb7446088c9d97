package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxFor(query string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/api/exports?"+query, nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query   string
		want    Params
		wantErr bool
	}{
		{query: "", want: Params{Limit: DefaultLimit}},
		{query: "limit=5&offset=10", want: Params{Limit: 5, Offset: 10}},
		{query: "limit=0", want: Params{Limit: DefaultLimit}},
		{query: "limit=-3", want: Params{Limit: DefaultLimit}},
		{query: "limit=1000", want: Params{Limit: MaxLimit}},
		{query: "offset=-7", want: Params{Limit: DefaultLimit}},
		{query: "limit=ten", wantErr: true},
		{query: "offset=1.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := FromContext(ctxFor(tt.query))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPage(t *testing.T) {
	pg := NewPage([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})
	assert.Equal(t, []string{"a", "b"}, pg.Data)
	assert.True(t, pg.HasMore)

	last := NewPage([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	assert.False(t, last.HasMore)

	empty := NewPage[int](nil, 0, Params{Limit: 20})
	assert.NotNil(t, empty.Data)
	assert.Empty(t, empty.Data)
}

func TestPage_WithLinks(t *testing.T) {
	links := func(pg *Page[int]) map[string]string {
		out := map[string]string{}
		for _, l := range pg.WithLinks("/api/exports").Links {
			out[l.Relation] = l.URL
		}
		return out
	}

	t.Run("first page", func(t *testing.T) {
		got := links(NewPage([]int{1, 2}, 5, Params{Limit: 2}))
		assert.Equal(t, map[string]string{
			"self": "/api/exports?limit=2&offset=0",
			"next": "/api/exports?limit=2&offset=2",
		}, got)
	})

	t.Run("middle page", func(t *testing.T) {
		got := links(NewPage([]int{3, 4}, 5, Params{Limit: 2, Offset: 2}))
		assert.Len(t, got, 3)
		assert.Equal(t, "/api/exports?limit=2&offset=0", got["previous"])
	})

	t.Run("ragged offset clamps previous", func(t *testing.T) {
		got := links(NewPage([]int{2}, 3, Params{Limit: 5, Offset: 1}))
		assert.Equal(t, "/api/exports?limit=5&offset=0", got["previous"])
		assert.NotContains(t, got, "next")
	})
}
