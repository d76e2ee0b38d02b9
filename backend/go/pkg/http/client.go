package http

import (
	"fmt"
	"net/http"
	"time"

	"SoraStudio/backend/go/internal/config"
	"SoraStudio/backend/go/pkg/circuitbreaker"
)

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking. The provider
// client uses it for all outbound calls so that a flapping upstream
// does not tie up request handlers.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a new Client. Every request is bounded by the given
// timeout; a zero timeout falls back to 30 seconds.
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	if !cfg.Enabled {
		return &Client{httpClient: httpClient, breaker: nil}, nil
	}

	breakerTimeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	breaker := circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, breakerTimeout)

	return &Client{httpClient: httpClient, breaker: breaker}, nil
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as failures for the breaker.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	var err error

	_, breakerErr := c.breaker.Execute(func() (interface{}, error) {
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}

		return resp, nil
	})

	if breakerErr != nil {
		// Either the breaker is open or the call itself failed.
		return nil, breakerErr
	}

	return resp, nil
}
