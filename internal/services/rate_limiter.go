package services

import (
	"fmt"
	"sync"
	"time"
)

// RequestRateLimiter implements per-key sliding-window rate limiting for the
// expensive API routes (refresh, upload). Keys are client IPs.
type RequestRateLimiter struct {
	mu          sync.RWMutex
	requests    map[string][]time.Time
	maxRequests int
	window      time.Duration
}

// NewRequestRateLimiter creates a new request rate limiter
// maxRequests: maximum number of requests per window
// window: time window for rate limiting (e.g., 1 minute)
func NewRequestRateLimiter(maxRequests int, window time.Duration) *RequestRateLimiter {
	return &RequestRateLimiter{
		requests:    make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow checks if the request is allowed for the given key
func (rl *RequestRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	// Clean up old requests
	rl.cleanupOldRequests(key, now)

	// Check if limit exceeded
	if len(rl.requests[key]) >= rl.maxRequests {
		return fmt.Errorf("rate limit exceeded: maximum %d requests per %v", rl.maxRequests, rl.window)
	}

	// Record new request
	if rl.requests[key] == nil {
		rl.requests[key] = make([]time.Time, 0)
	}
	rl.requests[key] = append(rl.requests[key], now)

	return nil
}

// cleanupOldRequests removes requests outside the time window
func (rl *RequestRateLimiter) cleanupOldRequests(key string, now time.Time) {
	if requests, exists := rl.requests[key]; exists {
		cutoff := now.Add(-rl.window)
		validRequests := make([]time.Time, 0, len(requests))

		for _, req := range requests {
			if req.After(cutoff) {
				validRequests = append(validRequests, req)
			}
		}

		if len(validRequests) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = validRequests
		}
	}
}

// Reset clears all rate limiting data
func (rl *RequestRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.requests = make(map[string][]time.Time)
}
