// rate_limiter.go - Per-client rate limiting of transaction submissions
package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration, now time.Time) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   now,
		refillPeriod: refillPeriod,
	}
}

// Allow reports whether a request at now is allowed and consumes a token if so
func (rl *RateLimiter) Allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if refills := int(now.Sub(rl.lastRefill) / rl.refillPeriod); refills > 0 {
		rl.tokens = min(rl.tokens+refills*rl.refillRate, rl.maxTokens)
		rl.lastRefill = rl.lastRefill.Add(time.Duration(refills) * rl.refillPeriod)
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// ClientRateLimiter keeps one bucket per client address.
type ClientRateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*RateLimiter
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
	now          func() time.Time
}

// NewClientRateLimiter creates a new per-client rate limiter
func NewClientRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

// Allow checks if a request from client is allowed
func (c *ClientRateLimiter) Allow(client string) bool {
	now := c.now()
	c.mu.Lock()
	limiter, ok := c.limiters[client]
	if !ok {
		limiter = NewRateLimiter(c.maxTokens, c.refillRate, c.refillPeriod, now)
		c.limiters[client] = limiter
	}
	c.mu.Unlock()
	return limiter.Allow(now)
}

// Middleware rejects requests over the client's budget with 429.
func (c *ClientRateLimiter) Middleware(onReject func(echo.Context)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !c.Allow(ctx.RealIP()) {
				if onReject != nil {
					onReject(ctx)
				}
				return ctx.JSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			}
			return next(ctx)
		}
	}
}
