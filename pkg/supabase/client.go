// Package supabase provides a minimal Supabase Storage client used as the
// backing object store for ingestion blob references.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/graphrag/orchestrator/infrastructure/httputil"
	"github.com/graphrag/orchestrator/infrastructure/ratelimit"
	"github.com/graphrag/orchestrator/pkg/version"
)

// httpDoer is satisfied by both *http.Client and
// *ratelimit.RateLimitedClient, so a Client can optionally throttle its
// outbound Storage calls without a type switch at every call site.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds Supabase connection configuration.
type Config struct {
	// ProjectURL is the Supabase project URL (e.g., http://localhost:8000 for self-hosted).
	ProjectURL string

	// AnonKey is the public anon key, used when ServiceRoleKey is unset.
	AnonKey string

	// ServiceRoleKey is the service role key for server-side operations (bypasses RLS).
	ServiceRoleKey string

	// StorageURL is the direct Storage URL (optional, defaults to ProjectURL/storage/v1).
	StorageURL string

	// RateLimit throttles outbound Storage calls when set, protecting a
	// shared Supabase project from a bulk ingestion run's burst of
	// uploads/downloads. Nil disables throttling.
	RateLimit *ratelimit.RateLimitConfig
}

// Client is a narrow Supabase Storage client.
type Client struct {
	cfg        Config
	httpClient httpDoer
	mu         sync.RWMutex

	storageURL string
}

// New creates a new Supabase Storage client.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, errors.New("supabase: project URL required")
	}

	projectURL, _, err := httputil.NormalizeBaseURL(cfg.ProjectURL, httputil.BaseURLOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase: %w", err)
	}

	base, err := httputil.NewClient(httputil.ClientConfig{
		ServiceID:  "supabase-storage",
		HTTPClient: &http.Client{Transport: httputil.DefaultTransportWithMinTLS12()},
	}, httputil.ClientDefaults{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("supabase: %w", err)
	}

	var doer httpDoer = base
	if cfg.RateLimit != nil {
		doer = ratelimit.NewRateLimitedClient(base, *cfg.RateLimit)
	}

	c := &Client{
		cfg:        cfg,
		httpClient: doer,
		storageURL: cfg.StorageURL,
	}

	if c.storageURL == "" {
		c.storageURL = projectURL + "/storage/v1"
	}

	return c, nil
}

// ============================================================================
// Storage Methods
// ============================================================================

// UploadFile uploads a file to Supabase Storage.
func (c *Client) UploadFile(ctx context.Context, bucket, path string, data io.Reader, contentType string) error {
	url := fmt.Sprintf("%s/object/%s/%s", c.storageURL, bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, data)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", contentType)
	c.setServiceRoleHeaders(req)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}
	return nil
}

// DownloadFile downloads a file from Supabase Storage.
func (c *Client) DownloadFile(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/object/%s/%s", c.storageURL, bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setServiceRoleHeaders(req)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, c.parseError(resp)
	}
	return resp.Body, nil
}

// DeleteFile removes a file from Supabase Storage.
func (c *Client) DeleteFile(ctx context.Context, bucket, path string) error {
	url := fmt.Sprintf("%s/object/%s/%s", c.storageURL, bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.setServiceRoleHeaders(req)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}
	return nil
}

// GetPublicURL returns the public URL for a file.
func (c *Client) GetPublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", c.storageURL, bucket, path)
}

// ============================================================================
// Helper Methods
// ============================================================================

func (c *Client) setServiceRoleHeaders(req *http.Request) {
	key := c.cfg.ServiceRoleKey
	if key == "" {
		key = c.cfg.AnonKey
	}
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)
}

// APIError represents a Supabase Storage API error.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	ErrorText  string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: %s (code=%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("supabase: %s (code=%d)", e.ErrorText, e.StatusCode)
}

func (c *Client) parseError(resp *http.Response) error {
	var apiErr APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return fmt.Errorf("supabase: request failed with status %d", resp.StatusCode)
	}
	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}
