package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v55/github"

	apperrors "github.com/kurihiro0119/github-repo-miner/internal/errors"
)

// retryPolicy decides how long to back off after a failed API call.
// Rate limit errors wait for the reported reset, secondary limits honor
// Retry-After, server and network errors back off exponentially.
type retryPolicy struct {
	maxRetries int
	fallback   time.Duration
	baseDelay  time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(maxRetries int, fallback time.Duration, logger *slog.Logger) *retryPolicy {
	return &retryPolicy{
		maxRetries: maxRetries,
		fallback:   fallback,
		baseDelay:  time.Second,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// do runs fn until it succeeds, fails permanently or retries are used up
func (p *retryPolicy) do(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		wait, retryable := p.backoff(attempt, err)
		if !retryable || attempt >= p.maxRetries {
			return wrapError(err, op)
		}

		p.logger.Warn("github request failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"wait", wait.Round(time.Second),
			"error", err)
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p *retryPolicy) backoff(attempt int, err error) (time.Duration, bool) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time) + time.Second
		if wait < time.Second {
			wait = time.Second
		}
		return wait, true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if abuseErr.RetryAfter != nil && *abuseErr.RetryAfter > 0 {
			return *abuseErr.RetryAfter, true
		}
		return p.fallback, true
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		if ghErr.Response.StatusCode == http.StatusTooManyRequests {
			return p.fallback, true
		}
		if ghErr.Response.StatusCode >= 500 {
			return p.exponential(attempt), true
		}
		return 0, false
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return p.exponential(attempt), true
	}

	return 0, false
}

func (p *retryPolicy) exponential(attempt int) time.Duration {
	wait := p.baseDelay << attempt
	if p.fallback > 0 && wait > p.fallback {
		wait = p.fallback
	}
	return wait
}

// wrapError converts go-github errors to application errors
func wrapError(err error, op string) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return apperrors.NewRateLimitedError(op, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.NewRateLimitedError(op, err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return apperrors.NewNotFoundError(op)
		case http.StatusUnauthorized:
			return apperrors.NewUnauthorizedError(ghErr.Message)
		case http.StatusForbidden:
			return apperrors.NewForbiddenError(ghErr.Message)
		case http.StatusTooManyRequests:
			return apperrors.NewRateLimitedError(op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// IsRepositoryError reports whether err concerns a single repository, such
// as a missing, empty or blocked one, rather than the whole session. Token,
// rate limit, server and network failures are not repository errors.
func IsRepositoryError(err error) bool {
	if apperrors.IsNotFound(err) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusConflict, http.StatusGone, http.StatusUnprocessableEntity, http.StatusUnavailableForLegalReasons:
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
