package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag/orchestrator/pkg/supabase"
)

func newTestClient(t *testing.T, handler http.Handler) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := supabase.New(supabase.Config{ProjectURL: srv.URL, ServiceRoleKey: "svc-key"})
	require.NoError(t, err)
	return client
}

func TestStorage_UploadDownloadRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			stored[r.URL.Path] = buf
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := stored[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"message":"not found"}`))
				return
			}
			w.Write(data)
		}
	}))

	s := NewStorage(client, "blobs")
	require.NoError(t, s.Upload(context.Background(), "dir/file.txt", []byte("hello"), ""))

	got, err := s.Download(context.Background(), "dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestStorage_ExistsReportsFalseOnNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"not found"}`))
	}))

	s := NewStorage(client, "blobs")
	ok, err := s.Exists(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_SanitizeKeyStripsTraversal(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	s := NewStorage(client, "blobs")
	require.NoError(t, s.Upload(context.Background(), "../../etc/passwd", []byte("x"), ""))
	assert.NotContains(t, gotPath, "..")
}

func TestSourceFetcher_FetchFileUsesSourcesPrefix(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("package main"))
	}))

	f := NewSourceFetcher(client)
	content, err := f.FetchFile(context.Background(), "cmd/app/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", string(content))
	assert.Contains(t, gotPath, "/sources/cmd/app/main.go")
}

func TestTenantStorage_ScopesKeysUnderTenantID(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	ts := NewTenantStorage(client, "tenant-a")
	require.NoError(t, ts.Upload(context.Background(), "export.json", []byte("{}"), ""))
	assert.Contains(t, gotPath, "/tenant-files/tenant-a/export.json")
}
