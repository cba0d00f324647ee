package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// RetrySource retries transient FetchPostings failures with exponential
// backoff and jitter.
type RetrySource struct {
	inner      model.PostingSource
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetrySource wraps inner. maxRetries is the number of additional attempts
// after the first failure; baseDelay doubles on each retry.
func NewRetrySource(inner model.PostingSource, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetrySource {
	return &RetrySource{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// FetchPostings fetches postings, retrying on transient errors.
func (s *RetrySource) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	postings, err := s.inner.FetchPostings(ctx)
	if err == nil || !isRetryableFetch(err) {
		return postings, err
	}

	lastErr := err
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		delay := s.backoffDelay(attempt, lastErr)
		s.logger.Warn("retrying source after transient error",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		postings, err = s.inner.FetchPostings(ctx)
		if err == nil {
			return postings, nil
		}
		if !isRetryableFetch(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoffDelay is baseDelay*2^(attempt-1) with ±30% jitter, unless the error
// carries a Retry-After.
func (s *RetrySource) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryableFetch reports whether a source error is worth retrying: network
// errors, 429 and 5xx. Other 4xx and cancellation are final.
func isRetryableFetch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	return true
}
