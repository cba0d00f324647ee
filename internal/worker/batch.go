// Package worker drains the job queue: the orchestrator pulls pending
// records in FIFO order and the batch processor enriches, notifies and
// settles each one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/notifier"
	"github.com/amishk599/jobmatch/internal/observability"
)

// InvalidAIResponse is the failure reason for assessments without a match
// percentage.
const InvalidAIResponse = "Invalid AI response"

// errInterrupted marks a record whose run was cancelled mid-enrichment.
var errInterrupted = errors.New("processing interrupted")

// Enricher produces an assessment for a record. It never fails; exhausted
// retries yield a fallback assessment.
type Enricher interface {
	CompareWithRetries(ctx context.Context, rec model.QueueRecord, resumeText string) model.Assessment
}

// BatchConfig holds the pacing between records. Zero values disable a delay.
type BatchConfig struct {
	Throttle       time.Duration // pause after each settled record
	ThrottleJitter time.Duration // random extra pause in [0, ThrottleJitter)
	FailureDelay   time.Duration // pause after a record fails unexpectedly
}

// DefaultBatchConfig returns the production pacing: 4–5s between records
// and 1s after a failure.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Throttle:       4 * time.Second,
		ThrottleJitter: time.Second,
		FailureDelay:   time.Second,
	}
}

// BatchResult counts the terminal states written for one batch.
type BatchResult struct {
	Done      int
	Failed    int
	Refreshed int // re-enqueued while being processed, left pending
}

// BatchProcessor settles queue records one at a time.
type BatchProcessor struct {
	store    model.QueueStore
	enricher Enricher
	notifier model.Notifier
	cfg      BatchConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatchProcessor creates a processor. Nil metrics or tracer use no-ops.
func NewBatchProcessor(store model.QueueStore, enricher Enricher, n model.Notifier, cfg BatchConfig, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *BatchProcessor {
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = observability.NewNoopTracer()
	}
	return &BatchProcessor{
		store:    store,
		enricher: enricher,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		sleep:    sleepCtx,
	}
}

// Process settles every record in batch sequentially. It stops early only
// when ctx is cancelled; unprocessed records stay pending.
func (b *BatchProcessor) Process(ctx context.Context, batch []model.QueueRecord, resumeText string) BatchResult {
	ctx, span := b.tracer.StartBatch(ctx, len(batch))
	defer span.End()
	b.metrics.RecordBatchSize(ctx, len(batch))

	var res BatchResult
	for _, rec := range batch {
		if ctx.Err() != nil {
			b.logger.Warn("batch interrupted, leaving remaining records pending", "error", ctx.Err())
			break
		}
		switch b.processRecord(ctx, rec, resumeText) {
		case observability.OutcomeDone:
			res.Done++
		case observability.OutcomeFailed:
			res.Failed++
		case observability.OutcomeRefreshed:
			res.Refreshed++
		}
	}
	return res
}

// processRecord settles rec and returns its outcome, or "" when it was left
// pending because ctx was cancelled.
func (b *BatchProcessor) processRecord(ctx context.Context, rec model.QueueRecord, resumeText string) string {
	ctx, span := b.tracer.StartRecord(ctx, rec.ID, rec.URL)
	defer span.End()
	logger := observability.LoggerWithTrace(ctx, b.logger).With("id", rec.ID, "title", rec.Title, "company", rec.Company)

	logger.Info("processing queued job")

	a, err := b.settle(ctx, rec, resumeText)
	switch {
	case errors.Is(err, errInterrupted):
		logger.Warn("run cancelled, leaving job pending")
		return ""

	case errors.Is(err, model.ErrRecordChanged):
		logger.Info("job was re-enqueued while processing, leaving it pending for the next run")
		b.metrics.RecordOutcome(ctx, observability.OutcomeRefreshed)
		return observability.OutcomeRefreshed

	case err != nil:
		b.tracer.RecordError(span, err)
		logger.Error("job failed", "error", err)
		outcome := b.markFailed(ctx, rec, err.Error(), logger)
		b.pause(ctx, b.cfg.FailureDelay)
		return outcome

	case !a.WellFormed():
		logger.Warn("invalid AI result, failing job")
		return b.markFailed(ctx, rec, InvalidAIResponse, logger)
	}

	if a.IsFallback() {
		logger.Warn("comparison fell back after retries")
	}
	logger.Info("job done", "match_percent", a.Percent(), "chance", a.ChanceCategory)
	b.metrics.RecordOutcome(ctx, observability.OutcomeDone)
	b.pause(ctx, b.cfg.Throttle+jitter(b.cfg.ThrottleJitter))
	return observability.OutcomeDone
}

// settle enriches, notifies and marks rec done. A malformed assessment is
// returned without touching the store.
func (b *BatchProcessor) settle(ctx context.Context, rec model.QueueRecord, resumeText string) (model.Assessment, error) {
	a := b.enricher.CompareWithRetries(ctx, rec, resumeText)
	if ctx.Err() != nil {
		return a, errInterrupted
	}
	if !a.WellFormed() {
		return a, nil
	}

	message := notifier.FormatMatch(rec, a)
	if err := b.notifier.Notify(ctx, a, message); err != nil {
		return a, fmt.Errorf("notify: %w", err)
	}

	description := rec.Description
	if strings.TrimSpace(description) == "" {
		description = model.NoDescription
	}
	if err := b.store.MarkDone(ctx, rec, description); err != nil {
		return a, err
	}
	return a, nil
}

// markFailed records reason on rec. A record refreshed since it was read
// keeps its new content and stays pending.
func (b *BatchProcessor) markFailed(ctx context.Context, rec model.QueueRecord, reason string, logger *slog.Logger) string {
	// The failure must be recorded even when the run is being cancelled.
	err := b.store.MarkFailed(context.WithoutCancel(ctx), rec, reason)
	if errors.Is(err, model.ErrRecordChanged) {
		logger.Info("job was re-enqueued while processing, leaving it pending for the next run")
		b.metrics.RecordOutcome(ctx, observability.OutcomeRefreshed)
		return observability.OutcomeRefreshed
	}
	if err != nil {
		logger.Error("marking job failed", "error", err)
	}
	b.metrics.RecordOutcome(ctx, observability.OutcomeFailed)
	return observability.OutcomeFailed
}

func (b *BatchProcessor) pause(ctx context.Context, d time.Duration) {
	_ = b.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// jitter returns a random duration in [0, d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)))
}
