package httputil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"
)

func TestNewClient_AppliesDefaultTimeout(t *testing.T) {
	client, err := NewClient(ClientConfig{}, ClientDefaults{Timeout: 15 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Timeout != 15*time.Second {
		t.Fatalf("Timeout = %v, want 15s", client.Timeout)
	}
}

func TestNewClient_ExplicitTimeoutOverridesDefault(t *testing.T) {
	client, err := NewClient(ClientConfig{Timeout: 5 * time.Second}, ClientDefaults{Timeout: 15 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Timeout != 5*time.Second {
		t.Fatalf("Timeout = %v, want 5s", client.Timeout)
	}
}

func TestNewClientWithBaseURL_NormalizesURL(t *testing.T) {
	client, baseURL, err := NewClientWithBaseURL(ClientConfig{BaseURL: " https://example.com/ "}, DefaultClientDefaults())
	if err != nil {
		t.Fatalf("NewClientWithBaseURL() error = %v", err)
	}
	if baseURL != "https://example.com" {
		t.Fatalf("baseURL = %q, want https://example.com", baseURL)
	}
	if client == nil {
		t.Fatal("NewClientWithBaseURL() returned nil client")
	}
}

func TestNewClientWithBaseURL_RejectsInvalidURL(t *testing.T) {
	_, _, err := NewClientWithBaseURL(ClientConfig{BaseURL: "not a url"}, DefaultClientDefaults())
	if err == nil {
		t.Fatal("NewClientWithBaseURL() expected error for invalid base URL")
	}
}

func TestResolveMaxBodyBytes(t *testing.T) {
	if got := ResolveMaxBodyBytes(0, 1024); got != 1024 {
		t.Fatalf("ResolveMaxBodyBytes(0, 1024) = %d, want 1024", got)
	}
	if got := ResolveMaxBodyBytes(512, 1024); got != 512 {
		t.Fatalf("ResolveMaxBodyBytes(512, 1024) = %d, want 512", got)
	}
}

func TestResolveServiceID_TrimsWhitespace(t *testing.T) {
	if got := ResolveServiceID("  ingestion  "); got != "ingestion" {
		t.Fatalf("ResolveServiceID() = %q, want ingestion", got)
	}
}

func TestDefaultTransportWithMinTLS12_EnforcesMinVersion(t *testing.T) {
	transport := DefaultTransportWithMinTLS12()
	httpTransport, ok := transport.(*http.Transport)
	if !ok {
		t.Fatal("DefaultTransportWithMinTLS12() did not return an *http.Transport")
	}
	if httpTransport.TLSClientConfig == nil || httpTransport.TLSClientConfig.MinVersion < tls.VersionTLS12 {
		t.Fatalf("MinVersion = %v, want at least TLS 1.2", httpTransport.TLSClientConfig)
	}
}
