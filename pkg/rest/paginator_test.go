package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server, mutate ...func(*Config)) *Client {
	t.Helper()
	config := Config{
		BaseURL:         server.URL,
		Username:        "agent@example.com",
		APIKey:          "secret",
		PageSize:        2,
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
		MaxRetryBackoff: 5 * time.Millisecond,
		RequestTimeout:  time.Second,
	}
	for _, fn := range mutate {
		fn(&config)
	}
	client, err := NewClient(config)
	require.NoError(t, err)
	return client
}

func collect(t *testing.T, paginator *Paginator) ([]*Page, error) {
	t.Helper()
	var pages []*Page
	err := paginator.Pages(context.Background(), Cursor{}, func(page *Page) error {
		pages = append(pages, page)
		return nil
	})
	return pages, err
}

func cursorStream() *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:          "tickets",
		Path:          "/api/tickets",
		Pagination:    types.PaginationCursor,
		RecordsPath:   "data",
		NextTokenPath: "meta.next_cursor",
		Params:        map[string]string{"order_by": "updated_datetime:asc"},
	}
}

func TestCursorPaginationTerminates(t *testing.T) {
	pages := map[string]string{
		"":   `{"data":[{"id":1},{"id":2}],"meta":{"next_cursor":"c2"}}`,
		"c2": `{"data":[{"id":3},{"id":4}],"meta":{"next_cursor":"c3"}}`,
		"c3": `{"data":[{"id":5}],"meta":{"next_cursor":null}}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tickets", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "updated_datetime:asc", r.URL.Query().Get("order_by"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "agent@example.com", user)
		assert.Equal(t, "secret", pass)
		fmt.Fprint(w, pages[r.URL.Query().Get("cursor")])
	}))
	defer server.Close()

	got, err := collect(t, NewPaginator(newTestClient(t, server), cursorStream(), "/api/tickets", nil))
	require.NoError(t, err)
	require.Len(t, got, 3)

	var ids []string
	for _, page := range got {
		for _, record := range page.Records {
			ids = append(ids, fmt.Sprint(record["id"]))
		}
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
	assert.Equal(t, "c2", got[0].NextToken)
	assert.Equal(t, "", got[2].NextToken)
}

func TestEmptyPageTerminates(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"data":[],"meta":{"next_cursor":"more"}}`)
	}))
	defer server.Close()

	got, err := collect(t, NewPaginator(newTestClient(t, server), cursorStream(), "/api/tickets", nil))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRepeatedTokenStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":1}],"meta":{"next_cursor":"same"}}`)
	}))
	defer server.Close()

	got, err := collect(t, NewPaginator(newTestClient(t, server), cursorStream(), "/api/tickets", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPaginationLoop))
	assert.Len(t, got, 2)

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.Transient)
	assert.Equal(t, "tickets", fetchErr.Stream)
}

func TestMaxPagesSafeguard(t *testing.T) {
	var counter atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"id":1}],"meta":{"next_cursor":"t%d"}}`, counter.Add(1))
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.MaxPages = 5 })
	got, err := collect(t, NewPaginator(client, cursorStream(), "/api/tickets", nil))
	assert.ErrorIs(t, err, ErrPaginationLoop)
	assert.Len(t, got, 5)
}

func TestNextURLPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			fmt.Fprint(w, `{"data":[{"id":1},{"id":2}],"meta":{"next_items":"/api/integrations?cursor=abc&limit=2"}}`)
		case "abc":
			fmt.Fprintf(w, `{"data":[{"id":3}],"meta":{"next_items":"%s/api/integrations?cursor=def&limit=2"}}`, server.URL)
		case "def":
			fmt.Fprint(w, `{"data":[{"id":4}],"meta":{}}`)
		}
	}))
	defer server.Close()

	stream := &types.StreamDefinition{
		Name:          "integrations",
		Path:          "/api/integrations",
		Pagination:    types.PaginationNextURL,
		RecordsPath:   "data",
		NextTokenPath: "$.meta.next_items",
	}
	got, err := collect(t, NewPaginator(newTestClient(t, server), stream, stream.Path, nil))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestOffsetPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		switch offset {
		case 0:
			fmt.Fprint(w, `[{"id":1},{"id":2}]`)
		case 2:
			fmt.Fprint(w, `[{"id":3}]`)
		default:
			t.Errorf("unexpected offset %d", offset)
		}
	}))
	defer server.Close()

	stream := &types.StreamDefinition{Name: "surveys", Path: "/api/surveys", Pagination: types.PaginationOffset}
	got, err := collect(t, NewPaginator(newTestClient(t, server), stream, stream.Path, nil))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Len(t, got[1].Records, 1)
}

func TestSingleObjectWithoutPagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"id":42,"subject":"hello"}`)
	}))
	defer server.Close()

	stream := &types.StreamDefinition{Name: "ticket_details", Path: "/api/tickets/{ticket_id}", Pagination: types.PaginationNone}
	got, err := collect(t, NewPaginator(newTestClient(t, server), stream, "/api/tickets/42", nil))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Records[0]["subject"])
}

func TestMalformedRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[1,2]}`)
	}))
	defer server.Close()

	_, err := collect(t, NewPaginator(newTestClient(t, server), cursorStream(), "/api/tickets", nil))
	var transformErr *types.TransformError
	assert.ErrorAs(t, err, &transformErr)
}

func TestCallbackErrorStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":1}],"meta":{"next_cursor":"next"}}`)
	}))
	defer server.Close()

	calls := 0
	err := NewPaginator(newTestClient(t, server), cursorStream(), "/api/tickets", nil).Pages(context.Background(), Cursor{}, func(*Page) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
