package apisports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matchsight/matchsight/internal/domain/event"
	"github.com/matchsight/matchsight/internal/usecase"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		APIKey:          "test-key",
		FootballBaseURL: server.URL,
	})
	return client, &calls
}

func TestClient_Fetch_CachesOKResponses(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":[]}`))
	})

	query := url.Values{}
	query.Set("league", "39")

	first, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", query, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)
	require.Equal(t, usecase.CacheStatusMiss, first.CacheStatus())

	second, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", query, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)
	require.Equal(t, usecase.CacheStatusHit, second.CacheStatus())
	require.Equal(t, first.Body, second.Body)

	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Fetch_DistinctURLsCacheSeparately(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":[]}`))
	})

	q1 := url.Values{}
	q1.Set("league", "39")
	q2 := url.Values{}
	q2.Set("league", "140")

	_, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", q1, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), event.SportFootball, "fixtures", q2, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)

	require.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_NoCacheBypassesStore(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":[]}`))
	})

	query := url.Values{}
	query.Set("id", "42")

	first, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", query, usecase.UpstreamFetchOptions{NoCache: true})
	require.NoError(t, err)
	require.Empty(t, first.CacheStatus())

	_, err = client.Fetch(context.Background(), event.SportFootball, "fixtures", query, usecase.UpstreamFetchOptions{NoCache: true})
	require.NoError(t, err)

	require.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})

	query := url.Values{}
	query.Set("league", "39")

	first, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", query, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, first.StatusCode)

	_, err = client.Fetch(context.Background(), event.SportFootball, "fixtures", query, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)

	require.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_ExpiredEntryRefetches(t *testing.T) {
	t.Parallel()

	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":[]}`))
	})

	query := url.Values{}
	query.Set("league", "39")
	opts := usecase.UpstreamFetchOptions{TTL: 30 * time.Millisecond}

	_, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", query, opts)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	resp, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", query, opts)
	require.NoError(t, err)
	require.Equal(t, usecase.CacheStatusMiss, resp.CacheStatus())
	require.Equal(t, int32(2), calls.Load())
}

func TestClient_Fetch_SendsAPIKeyHeader(t *testing.T) {
	t.Parallel()

	var gotKey atomic.Value
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("x-apisports-key"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":[]}`))
	})

	_, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", url.Values{}, usecase.UpstreamFetchOptions{})
	require.NoError(t, err)
	require.Equal(t, "test-key", gotKey.Load())
}

func TestClient_Fetch_MissingKeyFailsFast(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{})
	_, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", url.Values{}, usecase.UpstreamFetchOptions{})
	require.ErrorIs(t, err, usecase.ErrMissingAPIKey)
}

func TestClient_Fetch_TransportErrorIsNetworkError(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{
		APIKey:          "test-key",
		FootballBaseURL: "http://127.0.0.1:1",
		Timeout:         200 * time.Millisecond,
	})

	_, err := client.Fetch(context.Background(), event.SportFootball, "fixtures", url.Values{}, usecase.UpstreamFetchOptions{})
	require.ErrorIs(t, err, usecase.ErrUpstreamNetwork)
}
