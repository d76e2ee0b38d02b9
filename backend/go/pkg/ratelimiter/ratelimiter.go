package ratelimiter

import (
	"fmt"
	"time"

	"SoraStudio/backend/go/internal/config"
)

// RateLimiter is the interface for rate limiting.
// It defines a single method, Allow, which returns true if a request is allowed,
// and false otherwise.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// noopLimiter 在限流被禁用时使用，放行所有请求。
type noopLimiter struct{}

func (noopLimiter) Allow() bool { return true }

// NewFromConfig initializes a rate limiter based on the configuration.
func NewFromConfig(cfg config.RateLimiterConfig) (RateLimiter, error) {
	if !cfg.Enabled {
		return noopLimiter{}, nil
	}

	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "tokenBucket"
	}

	switch algorithm {
	case "tokenBucket":
		conf := cfg.TokenBucket
		return NewTokenBucket(conf.Rate, conf.Capacity), nil
	case "fixedWindow":
		conf := cfg.FixedWindow
		window, err := time.ParseDuration(conf.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid fixedWindow duration: %w", err)
		}
		return NewFixedWindowCounter(conf.Limit, window), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", cfg.Algorithm)
	}
}
