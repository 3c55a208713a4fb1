package httputil

import (
	"net/http"
	"testing"
	"time"
)

func TestCopyHTTPClientWithTimeout_NilBaseReturnsNewClient(t *testing.T) {
	client := CopyHTTPClientWithTimeout(nil, 5*time.Second, false)
	if client.Timeout != 5*time.Second {
		t.Fatalf("Timeout = %v, want 5s", client.Timeout)
	}
}

func TestCopyHTTPClientWithTimeout_SetsTimeoutWhenBaseHasNone(t *testing.T) {
	base := &http.Client{}
	client := CopyHTTPClientWithTimeout(base, 5*time.Second, false)
	if client.Timeout != 5*time.Second {
		t.Fatalf("Timeout = %v, want 5s", client.Timeout)
	}
	if client == base {
		t.Fatal("CopyHTTPClientWithTimeout() must not mutate the caller-provided client")
	}
}

func TestCopyHTTPClientWithTimeout_PreservesBaseTimeoutWithoutForce(t *testing.T) {
	base := &http.Client{Timeout: 2 * time.Second}
	client := CopyHTTPClientWithTimeout(base, 5*time.Second, false)
	if client.Timeout != 2*time.Second {
		t.Fatalf("Timeout = %v, want 2s (unchanged)", client.Timeout)
	}
}

func TestCopyHTTPClientWithTimeout_ForceOverridesExistingTimeout(t *testing.T) {
	base := &http.Client{Timeout: 2 * time.Second}
	client := CopyHTTPClientWithTimeout(base, 5*time.Second, true)
	if client.Timeout != 5*time.Second {
		t.Fatalf("Timeout = %v, want 5s", client.Timeout)
	}
}
