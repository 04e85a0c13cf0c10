package collector

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// githubCoreLimit is the authenticated core rate limit per hour
	githubCoreLimit = 5000

	// lowWatermark is the remaining budget below which we wait for reset
	lowWatermark = 10
)

// RateLimiter manages GitHub API rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
	CheckLimit() (remaining int, resetTime time.Time, err error)
	UpdateLimit(remaining int, resetTime time.Time)
}

// githubRateLimiter combines a proactive token bucket with the
// reactive remaining/reset budget reported by the API
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	bucket    *rate.Limiter
	logger    *slog.Logger
}

// NewRateLimiter creates a new rate limiter allowing at most
// requestsPerSecond calls on average
func NewRateLimiter(requestsPerSecond float64, logger *slog.Logger) RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &githubRateLimiter{
		remaining: githubCoreLimit,
		resetTime: time.Now().Add(time.Hour),
		bucket:    rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Wait waits until it's safe to make another API call
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	remaining := r.remaining
	resetTime := r.resetTime
	r.mu.Unlock()

	if remaining > lowWatermark {
		return nil
	}

	waitDuration := time.Until(resetTime)
	if waitDuration > 0 {
		r.logger.Warn("rate limit low, waiting for reset",
			"remaining", remaining,
			"wait", waitDuration.Round(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
		}
		r.logger.Info("rate limit reset, continuing")
	}

	r.mu.Lock()
	// A response received while waiting already carries fresher numbers.
	if !r.resetTime.After(resetTime) {
		r.remaining = githubCoreLimit
		r.resetTime = time.Now().Add(time.Hour)
	}
	r.mu.Unlock()
	return nil
}

// CheckLimit returns the current rate limit status
func (r *githubRateLimiter) CheckLimit() (remaining int, resetTime time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime, nil
}

// UpdateLimit updates the rate limit from API response headers
func (r *githubRateLimiter) UpdateLimit(remaining int, resetTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remaining = remaining
	r.resetTime = resetTime
}

// limitedTransport waits for the rate limiter before each request that
// goes out to the network
type limitedTransport struct {
	base    http.RoundTripper
	limiter RateLimiter
}

// RoundTrip implements http.RoundTripper
func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
