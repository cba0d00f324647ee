package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// SourceLimiter enforces a minimum delay between requests to the same ATS
// backend, so boards hosted by one provider are not polled back to back.
type SourceLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: ATS name
	minDelay time.Duration
	perATS   map[string]time.Duration
}

// NewSourceLimiter creates a limiter with minDelay between calls per ATS.
func NewSourceLimiter(minDelay time.Duration) *SourceLimiter {
	return &SourceLimiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
		perATS:   make(map[string]time.Duration),
	}
}

// SetDelay overrides the minimum delay for one ATS.
func (l *SourceLimiter) SetDelay(ats string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perATS[ats] = d
}

// Wait blocks until minDelay has passed since the last request to ats.
func (l *SourceLimiter) Wait(ctx context.Context, ats string) error {
	l.mu.Lock()
	last, ok := l.lastCall[ats]
	now := time.Now()
	delay := l.minDelay
	if d, found := l.perATS[ats]; found {
		delay = d
	}

	if !ok || now.Sub(last) >= delay {
		l.lastCall[ats] = now
		l.mu.Unlock()
		return nil
	}

	remaining := delay - now.Sub(last)
	// Reserve the slot so concurrent callers queue behind this one.
	l.lastCall[ats] = now.Add(remaining)
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("source limiter wait for %s: %w", ats, ctx.Err())
	case <-time.After(remaining):
	}
	return nil
}

// LimitedSource delays FetchPostings on a shared SourceLimiter.
type LimitedSource struct {
	inner   model.PostingSource
	limiter *SourceLimiter
	ats     string
}

// NewLimitedSource wraps inner. Sources on the same ATS should share limiter.
func NewLimitedSource(inner model.PostingSource, limiter *SourceLimiter, ats string) *LimitedSource {
	return &LimitedSource{inner: inner, limiter: limiter, ats: ats}
}

// FetchPostings waits for the limiter, then delegates.
func (s *LimitedSource) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	if err := s.limiter.Wait(ctx, s.ats); err != nil {
		return nil, err
	}
	return s.inner.FetchPostings(ctx)
}
