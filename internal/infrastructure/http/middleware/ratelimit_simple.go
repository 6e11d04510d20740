package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// SimpleLimiter is an in-memory, per-key token-bucket rate limiter guarding
// the admin HTTP surface from a misbehaving poller or script.
type SimpleLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewSimpleLimiter creates a new simple rate limiter.
func NewSimpleLimiter(r rate.Limit, b int) *SimpleLimiter {
	return &SimpleLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns the limiter for key, creating one on first use.
func (l *SimpleLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	return limiter
}

// CleanupRoutine periodically clears the limiter map so a long-running
// coordinator doesn't accumulate one entry per caller IP forever.
func (l *SimpleLimiter) CleanupRoutine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.limiters = make(map[string]*rate.Limiter)
			l.mu.Unlock()
		}
	}
}

// SimpleRateLimit rate-limits requests by caller IP, exempting the liveness
// and metrics endpoints so a scrape storm can't lock out the admin surface.
func SimpleRateLimit(requestsPerSecond float64, burst int) echo.MiddlewareFunc {
	limiter := NewSimpleLimiter(rate.Limit(requestsPerSecond), burst)

	ctx := context.Background()
	go limiter.CleanupRoutine(ctx, 10*time.Minute)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/health" || c.Path() == "/metrics" {
				return next(c)
			}

			l := limiter.GetLimiter(c.RealIP())
			if !l.Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "rate_limit_exceeded",
					"message": "too many requests, please slow down",
				})
			}

			return next(c)
		}
	}
}
