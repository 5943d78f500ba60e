package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/geocache/geocache/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestNewUpstreamClientDefaults(t *testing.T) {
	client := NewUpstreamClient(nil)
	if client.Timeout != 5*time.Minute {
		t.Fatalf("expected default timeout 5m, got %s", client.Timeout)
	}
	if _, ok := client.Transport.(*http.Transport); !ok {
		t.Fatalf("expected cloned *http.Transport, got %T", client.Transport)
	}
	if client.Transport == http.RoundTripper(defaultTransport) {
		t.Fatalf("transport should be a clone of the shared defaults")
	}
}
