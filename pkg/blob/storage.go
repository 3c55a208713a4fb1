// Package blob provides Supabase Storage-based blob storage for the raw
// source files an ingestion run reads from. Most deployments resolve files
// directly from a mounted checkout, but a blob store lets the AST stage fetch
// file contents by reference instead (e.g. when the orchestrator runs apart
// from the repository checkout).
package blob

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/graphrag/orchestrator/pkg/supabase"
)

// Storage provides blob storage operations via Supabase Storage.
type Storage struct {
	client     *supabase.Client
	bucketName string
}

// NewStorage creates a new Supabase Storage-based blob storage.
func NewStorage(client *supabase.Client, bucketName string) *Storage {
	if bucketName == "" {
		bucketName = "blobs"
	}
	return &Storage{
		client:     client,
		bucketName: bucketName,
	}
}

// Upload uploads a blob to Supabase Storage.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.client.UploadFile(ctx, s.bucketName, sanitizeKey(key), bytes.NewReader(data), contentType)
}

// UploadReader uploads a blob from an io.Reader.
func (s *Storage) UploadReader(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.client.UploadFile(ctx, s.bucketName, sanitizeKey(key), reader, contentType)
}

// Download downloads a blob from Supabase Storage.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.DownloadFile(ctx, s.bucketName, sanitizeKey(key))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// DownloadReader returns an io.ReadCloser for streaming downloads.
func (s *Storage) DownloadReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.client.DownloadFile(ctx, s.bucketName, sanitizeKey(key))
}

// Delete removes a blob from Supabase Storage.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.client.DeleteFile(ctx, s.bucketName, sanitizeKey(key))
}

// GetPublicURL returns the public URL for a blob.
func (s *Storage) GetPublicURL(key string) string {
	return s.client.GetPublicURL(s.bucketName, sanitizeKey(key))
}

// Exists checks if a blob exists.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	reader, err := s.client.DownloadFile(ctx, s.bucketName, sanitizeKey(key))
	if err != nil {
		if strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	reader.Close()
	return true, nil
}

// ============================================================================
// Ingestion Source Fetcher
// ============================================================================

// SourceFetcher resolves raw source file contents by blob key when the
// ingestion AST stage is not pointed at a local checkout. It keys blobs by
// repository-relative path under a "sources/" prefix in the
// "ingestion-sources" bucket; keys carry no tenant id (TenantStorage below
// is the tenant-scoped store).
type SourceFetcher struct {
	storage *Storage
}

// NewSourceFetcher creates a source fetcher backed by Supabase Storage.
func NewSourceFetcher(client *supabase.Client) *SourceFetcher {
	return &SourceFetcher{storage: NewStorage(client, "ingestion-sources")}
}

// FetchFile retrieves the content of a single source file reference.
func (f *SourceFetcher) FetchFile(ctx context.Context, repoPath string) ([]byte, error) {
	key := path.Join("sources", sanitizeKey(repoPath))
	return f.storage.Download(ctx, key)
}

// StoreFile stores (or refreshes) a source file snapshot at the given path.
func (f *SourceFetcher) StoreFile(ctx context.Context, repoPath string, data []byte) error {
	key := path.Join("sources", sanitizeKey(repoPath))
	return f.storage.Upload(ctx, key, data, "text/plain; charset=utf-8")
}

// HasFile reports whether a snapshot already exists for repoPath.
func (f *SourceFetcher) HasFile(ctx context.Context, repoPath string) (bool, error) {
	key := path.Join("sources", sanitizeKey(repoPath))
	return f.storage.Exists(ctx, key)
}

// ============================================================================
// Tenant-Scoped Storage
// ============================================================================

// TenantStorage provides tenant-isolated blob storage. It is used by
// physically-isolated tenants that keep their own source snapshots and
// checkpoint exports separate from the shared bucket namespace.
type TenantStorage struct {
	client   *supabase.Client
	tenantID string
}

// NewTenantStorage creates a tenant-scoped storage.
func NewTenantStorage(client *supabase.Client, tenantID string) *TenantStorage {
	return &TenantStorage{
		client:   client,
		tenantID: tenantID,
	}
}

// Upload uploads a file to the tenant's storage.
func (t *TenantStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	fullKey := t.tenantKey(key)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return t.client.UploadFile(ctx, "tenant-files", fullKey, bytes.NewReader(data), contentType)
}

// Download downloads a file from the tenant's storage.
func (t *TenantStorage) Download(ctx context.Context, key string) ([]byte, error) {
	fullKey := t.tenantKey(key)
	reader, err := t.client.DownloadFile(ctx, "tenant-files", fullKey)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// Delete removes a file from the tenant's storage.
func (t *TenantStorage) Delete(ctx context.Context, key string) error {
	fullKey := t.tenantKey(key)
	return t.client.DeleteFile(ctx, "tenant-files", fullKey)
}

// GetPublicURL returns the public URL for a tenant's file.
func (t *TenantStorage) GetPublicURL(key string) string {
	fullKey := t.tenantKey(key)
	return t.client.GetPublicURL("tenant-files", fullKey)
}

func (t *TenantStorage) tenantKey(key string) string {
	return path.Join(t.tenantID, sanitizeKey(key))
}

// ============================================================================
// Helpers
// ============================================================================

func sanitizeKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	key = path.Clean(key)
	key = strings.ReplaceAll(key, "..", "_")
	return key
}
