// Package ratelimit holds the shared quota backoff for the AI comparator and
// a per-source spacing limiter for ingestion.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxMultiplier caps the escalation at 16x the base cooldown.
const DefaultMaxMultiplier = 16

// Controller tracks a global pause window and an escalating backoff
// multiplier. Each quota rejection pauses processing for base*multiplier and
// doubles the multiplier; a success resets it to 1.
type Controller struct {
	mu            sync.Mutex
	pauseUntil    time.Time
	multiplier    int
	maxMultiplier int
	now           func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithMaxMultiplier caps the multiplier. Values below 1 are ignored.
func WithMaxMultiplier(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.maxMultiplier = n
		}
	}
}

// NewController returns a Controller that is not paused and has multiplier 1.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		multiplier:    1,
		maxMultiplier: DefaultMaxMultiplier,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pauseUntil = c.now()
	return c
}

// IsPaused reports whether now falls inside the pause window.
func (c *Controller) IsPaused(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.pauseUntil)
}

// RecordQuotaExceeded pauses for base times the current multiplier, then
// doubles the multiplier. It returns the pause applied.
func (c *Controller) RecordQuotaExceeded(base time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	pause := base * time.Duration(c.multiplier)
	c.pauseUntil = c.now().Add(pause)

	c.multiplier *= 2
	if c.multiplier > c.maxMultiplier {
		c.multiplier = c.maxMultiplier
	}
	return pause
}

// RecordSuccess resets the multiplier. An active pause is left in place.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	c.multiplier = 1
	c.mu.Unlock()
}

// Multiplier returns the multiplier the next quota rejection will use.
func (c *Controller) Multiplier() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}

// PauseUntil returns the end of the current pause window.
func (c *Controller) PauseUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseUntil
}

// Wait blocks until the pause window has passed. A pause extended while
// waiting is honored. Returns an error if ctx is cancelled first.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		remaining := c.pauseUntil.Sub(c.now())
		c.mu.Unlock()

		if remaining <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-time.After(remaining):
		}
	}
}
