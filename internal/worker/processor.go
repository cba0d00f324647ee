package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/observability"
	"github.com/amishk599/jobmatch/internal/ratelimit"
	"github.com/amishk599/jobmatch/internal/runlock"
)

// DefaultBatchSize is the number of records buffered before a batch is processed.
const DefaultBatchSize = 2

// Lifecycle announcements.
const (
	AnnounceStarted  = "Queue processing started"
	AnnounceFinished = "Queue processing finished"
	AnnounceAborted  = "Queue processing aborted"
)

// RunStats summarizes one ProcessQueue call.
type RunStats struct {
	Skipped   bool // another run held the guard
	Batches   int
	Done      int
	Failed    int
	Refreshed int // re-enqueued mid-run, left pending
	Started   time.Time
	Finished  time.Time
}

// QueueProcessor drains pending queue records in FIFO order, one run at a time.
type QueueProcessor struct {
	store      model.QueueStore
	batch      *BatchProcessor
	resume     model.ResumeProvider
	notifier   model.Notifier
	controller *ratelimit.Controller
	guard      runlock.Guard
	batchSize  int
	logger     *slog.Logger
	tracer     *observability.Tracer

	running atomic.Bool
}

// NewQueueProcessor creates an orchestrator. controller must be the one
// shared with the batch processor's enricher. batchSize <= 0 uses
// DefaultBatchSize; a nil guard uses an in-process runlock.Local.
func NewQueueProcessor(
	store model.QueueStore,
	batch *BatchProcessor,
	resume model.ResumeProvider,
	n model.Notifier,
	controller *ratelimit.Controller,
	guard runlock.Guard,
	batchSize int,
	tracer *observability.Tracer,
	logger *slog.Logger,
) *QueueProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if guard == nil {
		guard = runlock.NewLocal()
	}
	if tracer == nil {
		tracer = observability.NewNoopTracer()
	}
	return &QueueProcessor{
		store:      store,
		batch:      batch,
		resume:     resume,
		notifier:   n,
		controller: controller,
		guard:      guard,
		batchSize:  batchSize,
		logger:     logger,
		tracer:     tracer,
	}
}

// Running reports whether this processor is inside a run.
func (p *QueueProcessor) Running() bool {
	return p.running.Load()
}

// ProcessQueue drains the queue once. A call made while another run holds
// the guard returns immediately with Skipped set. Only resume and queue read
// failures are returned; per-record failures end up in the queue.
func (p *QueueProcessor) ProcessQueue(ctx context.Context) (RunStats, error) {
	release, ok, err := p.guard.TryAcquire(ctx)
	if err != nil {
		return RunStats{}, fmt.Errorf("acquire run guard: %w", err)
	}
	if !ok {
		p.logger.Info("queue processor is already running, skipping this run")
		return RunStats{Skipped: true}, nil
	}
	defer release()

	p.running.Store(true)
	defer p.running.Store(false)

	ctx, span := p.tracer.StartRun(ctx)
	defer span.End()

	stats, err := p.drain(ctx)
	if err != nil {
		p.tracer.RecordError(span, err)
	}
	return stats, err
}

func (p *QueueProcessor) drain(ctx context.Context) (RunStats, error) {
	stats := RunStats{Started: time.Now()}
	p.logger.Info("starting queue processor")
	p.announce(ctx, AnnounceStarted)

	resumeText, err := p.resume.ResumeText(ctx)
	if err != nil {
		p.announce(ctx, fmt.Sprintf("%s: cannot read resume", AnnounceAborted))
		return stats, fmt.Errorf("fetch resume: %w", err)
	}

	var (
		cursor model.Cursor
		buf    = make([]model.QueueRecord, 0, p.batchSize)
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		res := p.batch.Process(ctx, buf, resumeText)
		stats.Batches++
		stats.Done += res.Done
		stats.Failed += res.Failed
		stats.Refreshed += res.Refreshed
		buf = buf[:0]
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("queue run cancelled: %w", err)
		}
		if err := p.controller.Wait(ctx); err != nil {
			return stats, err
		}

		rec, err := p.store.NextPending(ctx, cursor)
		if err != nil {
			p.announce(ctx, fmt.Sprintf("%s: queue read failed", AnnounceAborted))
			return stats, fmt.Errorf("dequeue pending: %w", err)
		}
		if rec == nil {
			break
		}

		cursor = rec.After()
		buf = append(buf, *rec)
		if len(buf) >= p.batchSize {
			flush()
		}
	}
	flush()

	stats.Finished = time.Now()
	p.logger.Info("queue is empty, exiting queue processor",
		"batches", stats.Batches, "done", stats.Done, "failed", stats.Failed, "refreshed", stats.Refreshed,
		"elapsed", stats.Finished.Sub(stats.Started).Round(time.Millisecond))
	p.announce(ctx, AnnounceFinished)
	return stats, nil
}

func (p *QueueProcessor) announce(ctx context.Context, text string) {
	if err := p.notifier.Announce(ctx, text); err != nil {
		p.logger.Warn("announcement failed", "text", text, "error", err)
	}
}
