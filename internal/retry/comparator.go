// Package retry wraps flaky upstream calls with retries: the AI comparator
// (quota-aware, never fails) and posting sources (exponential backoff).
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/observability"
	"github.com/amishk599/jobmatch/internal/ratelimit"
)

// ErrorClass is the retry category of a comparator error.
type ErrorClass string

const (
	ClassRateLimited ErrorClass = "rate_limited"
	ClassTransient   ErrorClass = "transient"
	ClassCancelled   ErrorClass = "cancelled"
)

// Classify maps a comparator error to its retry category. Deadline errors
// are per-call timeouts and count as transient.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, model.ErrRateLimited):
		return ClassRateLimited
	default:
		return ClassTransient
	}
}

// ComparatorConfig tunes RetryComparator. Zero fields take defaults.
type ComparatorConfig struct {
	MaxRetries   int           // additional attempts after the first (default 2)
	BaseCooldown time.Duration // quota pause before escalation (default 60s)
	JitterMin    time.Duration // transient retry delay lower bound (default 2s)
	JitterMax    time.Duration // transient retry delay upper bound (default 3s)
}

func (c ComparatorConfig) withDefaults() ComparatorConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = 60 * time.Second
	}
	if c.JitterMin <= 0 {
		c.JitterMin = 2 * time.Second
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin + time.Second
	}
	return c
}

// DefaultComparatorConfig returns the production settings.
func DefaultComparatorConfig() ComparatorConfig {
	return ComparatorConfig{MaxRetries: 2}.withDefaults()
}

// RetryComparator calls a model.Comparator until it returns an assessment,
// pausing the shared rate-limit controller on quota rejections. It never
// returns an error: exhausted retries yield model.FallbackAssessment.
type RetryComparator struct {
	inner      model.Comparator
	controller *ratelimit.Controller
	cfg        ComparatorConfig
	logger     *slog.Logger
	metrics    *observability.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// NewRetryComparator wraps inner. controller is shared with the orchestrator.
func NewRetryComparator(inner model.Comparator, controller *ratelimit.Controller, cfg ComparatorConfig, metrics *observability.Metrics, logger *slog.Logger) *RetryComparator {
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &RetryComparator{
		inner:      inner,
		controller: controller,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepCtx,
		jitter:     uniformJitter,
	}
}

// CompareWithRetries returns the first assessment the comparator produces.
// A well-formed result resets the controller's backoff. A result without a
// match percentage is returned as-is so the caller can fail the record
// without spending more attempts.
func (r *RetryComparator) CompareWithRetries(ctx context.Context, rec model.QueueRecord, resumeText string) model.Assessment {
	posting := rec.Posting()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return model.FallbackAssessment()
		}

		a, err := r.inner.Compare(ctx, posting, resumeText)
		if err == nil {
			if a.WellFormed() {
				r.metrics.RecordAttempt(ctx, "ok")
				r.controller.RecordSuccess()
			} else {
				r.metrics.RecordAttempt(ctx, "malformed")
				r.logger.Warn("comparator returned assessment without match percent",
					"id", rec.ID, "url", rec.URL, "attempt", attempt)
			}
			return a
		}

		class := Classify(err)
		r.metrics.RecordAttempt(ctx, string(class))
		last := attempt == r.cfg.MaxRetries

		switch class {
		case ClassCancelled:
			return model.FallbackAssessment()

		case ClassRateLimited:
			pause := r.controller.RecordQuotaExceeded(r.cfg.BaseCooldown)
			r.metrics.RecordRateLimitPause(ctx)
			r.logger.Warn("comparator quota exceeded, pausing",
				"id", rec.ID, "attempt", attempt, "pause", pause, "error", err)
			if err := r.sleep(ctx, pause); err != nil {
				return model.FallbackAssessment()
			}

		default:
			r.logger.Warn("comparator call failed",
				"id", rec.ID, "attempt", attempt, "max_retries", r.cfg.MaxRetries, "error", err)
			if last {
				continue
			}
			if err := r.sleep(ctx, r.jitter(r.cfg.JitterMin, r.cfg.JitterMax)); err != nil {
				return model.FallbackAssessment()
			}
		}
	}

	r.logger.Error("comparator retries exhausted, using fallback assessment",
		"id", rec.ID, "url", rec.URL, "attempts", r.cfg.MaxRetries+1)
	return model.FallbackAssessment()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry sleep: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// uniformJitter returns a duration in [lo, hi).
func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}
