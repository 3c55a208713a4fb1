package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/infrastructure/ratelimit"
)

func TestNew_RequiresProjectURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_DefaultsStorageURLFromProjectURL(t *testing.T) {
	c, err := New(Config{ProjectURL: "https://example.supabase.co/"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co/storage/v1", c.storageURL)
}

func TestClient_UploadFileSendsServiceRoleHeaders(t *testing.T) {
	var gotAuth, gotAPIKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{ProjectURL: srv.URL, ServiceRoleKey: "svc-key"})
	require.NoError(t, err)

	err = c.UploadFile(context.Background(), "blobs", "a/b.txt", nil, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "Bearer svc-key", gotAuth)
	assert.Equal(t, "svc-key", gotAPIKey)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestClient_UploadFileFallsBackToAnonKeyWithoutServiceRole(t *testing.T) {
	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apikey")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{ProjectURL: srv.URL, AnonKey: "anon-key"})
	require.NoError(t, err)

	require.NoError(t, c.UploadFile(context.Background(), "blobs", "a.txt", nil, ""))
	assert.Equal(t, "anon-key", gotAPIKey)
}

func TestClient_DownloadFileReturnsAPIErrorOnFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"object not found"}`))
	}))
	defer srv.Close()

	c, err := New(Config{ProjectURL: srv.URL, ServiceRoleKey: "svc-key"})
	require.NoError(t, err)

	_, err = c.DownloadFile(context.Background(), "blobs", "missing.txt")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "object not found", apiErr.Message)
}

func TestClient_GetPublicURL(t *testing.T) {
	c, err := New(Config{ProjectURL: "https://example.supabase.co"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.supabase.co/storage/v1/object/public/blobs/a.txt", c.GetPublicURL("blobs", "a.txt"))
}

func TestClient_RateLimitConfigThrottlesOutboundCalls(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := ratelimit.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	c, err := New(Config{ProjectURL: srv.URL, ServiceRoleKey: "svc-key", RateLimit: &cfg})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.UploadFile(context.Background(), "blobs", "a.txt", nil, ""))
	}
	assert.Equal(t, 3, calls, "a generous rate limit must still let every call through")
}
