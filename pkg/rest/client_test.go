package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, `{"id":12345678901234567}`)
		}
	}))
	defer server.Close()

	resp, err := newTestClient(t, server).Get(context.Background(), "/api/account", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	// ids stay exact
	assert.Equal(t, json.Number("12345678901234567"), resp.Body.(map[string]any)["id"])
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Get(context.Background(), "/api/tickets", nil)
	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Transient)
	assert.Equal(t, http.StatusBadGateway, fetchErr.Status)
	assert.Equal(t, int32(3), hits.Load(), "one attempt plus two retries")
	assert.True(t, types.IsTransient(err))
}

func TestGetFailsFastOnClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"not found"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Get(context.Background(), "/api/tickets/1", nil)
	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.Transient)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetRetriesTimeouts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.RequestTimeout = 20 * time.Millisecond })
	_, err := client.Get(context.Background(), "/api/account", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGetHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t, server).Get(ctx, "/api/tickets", nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.AccessToken = "token" })
	_, err := client.Get(context.Background(), "/api/account", nil)
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "https://acme.gorgias.com/"})
	require.NoError(t, err)

	target, err := client.Resolve("/api/tickets", map[string][]string{"limit": {"10"}})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.gorgias.com/api/tickets?limit=10", target)

	target, err = client.Resolve("https://acme.gorgias.com/api/integrations?cursor=x", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.gorgias.com/api/integrations?cursor=x", target)

	_, err = NewClient(Config{BaseURL: "acme"})
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Greater(t, parseRetryAfter(time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)), 30*time.Minute)
}

func TestLookup(t *testing.T) {
	body := map[string]any{"meta": map[string]any{"next_cursor": "abc", "prev": nil}}
	value, found := Lookup(body, "meta.next_cursor")
	assert.True(t, found)
	assert.Equal(t, "abc", value)

	_, found = Lookup(body, "$.meta.prev")
	assert.False(t, found)
	_, found = Lookup(body, "meta.next_cursor.deeper")
	assert.False(t, found)
}
