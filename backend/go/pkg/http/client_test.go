package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SoraStudio/backend/go/internal/config"
)

// helper function to create a breaker config for testing
func newTestBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2, // Open after 2 consecutive failures
		SuccessThreshold: 2,
		Timeout:          "10s",
	}
}

func TestClient_Disabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(config.CircuitBreakerConfig{Enabled: false}, time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status OK, got %d", resp.StatusCode)
	}
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	// This handler always fails, to trip the breaker.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(newTestBreakerConfig(), time.Second)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	// First 2 requests fail and trip the circuit.
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		if _, err := client.Do(req); err == nil {
			t.Fatalf("Expected error on request %d", i+1)
		}
	}

	// The 3rd request should be blocked by the open breaker without
	// reaching the server.
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err = client.Do(req)
	if err == nil {
		t.Fatal("Expected error from open circuit breaker")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("Expected open-breaker error, got %v", err)
	}
}

func TestClient_InvalidBreakerTimeout(t *testing.T) {
	cfg := newTestBreakerConfig()
	cfg.Timeout = "not a duration"

	if _, err := NewClient(cfg, time.Second); err == nil {
		t.Error("Expected error for invalid breaker timeout")
	}
}
