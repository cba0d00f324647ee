// Package observability provides OpenTelemetry metrics and spans for queue
// processing. Setup installs the SDK providers; with no exporter configured
// the instruments are no-ops.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName identifies this module's tracer and meter.
const InstrumentationName = "github.com/amishk599/jobmatch"

// Attribute keys.
const (
	AttrRecordID   = "jobmatch.record.id"
	AttrRecordURL  = "jobmatch.record.url"
	AttrBatchSize  = "jobmatch.batch.size"
	AttrOutcome    = "jobmatch.outcome"
	AttrErrorClass = "jobmatch.error.class"
)

// Record outcomes.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeRefreshed = "refreshed"
)

// Metrics holds the queue processing instruments.
type Metrics struct {
	records         metric.Int64Counter
	attempts        metric.Int64Counter
	rateLimitPauses metric.Int64Counter
	batchSize       metric.Int64Histogram
}

// NewMetrics creates instruments on mp.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(InstrumentationName)
	m := &Metrics{}

	var err error
	m.records, err = meter.Int64Counter(
		"jobmatch.queue.records",
		metric.WithDescription("Queue records that reached a terminal state"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		m.records, _ = meter.Int64Counter("jobmatch.queue.records")
	}

	m.attempts, err = meter.Int64Counter(
		"jobmatch.enrichment.attempts",
		metric.WithDescription("Comparator calls, by error class"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.attempts, _ = meter.Int64Counter("jobmatch.enrichment.attempts")
	}

	m.rateLimitPauses, err = meter.Int64Counter(
		"jobmatch.ratelimit.pauses",
		metric.WithDescription("Quota rejections that paused processing"),
		metric.WithUnit("{pause}"),
	)
	if err != nil {
		m.rateLimitPauses, _ = meter.Int64Counter("jobmatch.ratelimit.pauses")
	}

	m.batchSize, err = meter.Int64Histogram(
		"jobmatch.batch.size",
		metric.WithDescription("Records per processed batch"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		m.batchSize, _ = meter.Int64Histogram("jobmatch.batch.size")
	}

	return m
}

// NewNoopMetrics creates metrics that record nothing.
func NewNoopMetrics() *Metrics {
	return NewMetrics(noop.NewMeterProvider())
}

// RecordOutcome counts a record reaching done or failed.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.records.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// RecordAttempt counts a comparator call. class is "ok" on success.
func (m *Metrics) RecordAttempt(ctx context.Context, class string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrErrorClass, class)))
}

// RecordRateLimitPause counts a quota pause.
func (m *Metrics) RecordRateLimitPause(ctx context.Context) {
	m.rateLimitPauses.Add(ctx, 1)
}

// RecordBatchSize records the size of a processed batch.
func (m *Metrics) RecordBatchSize(ctx context.Context, size int) {
	m.batchSize.Record(ctx, int64(size))
}

// Tracer wraps an OpenTelemetry tracer with queue-specific spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer on tp.
func NewTracer(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(InstrumentationName)}
}

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return NewTracer(tracenoop.NewTracerProvider())
}

// StartRun starts the span for one ProcessQueue run.
func (t *Tracer) StartRun(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "jobmatch.queue.run")
}

// StartBatch starts the span for one batch.
func (t *Tracer) StartBatch(ctx context.Context, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "jobmatch.queue.batch",
		trace.WithAttributes(attribute.Int(AttrBatchSize, size)))
}

// StartRecord starts the span for one record.
func (t *Tracer) StartRecord(ctx context.Context, id, url string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "jobmatch.queue.record", trace.WithAttributes(
		attribute.String(AttrRecordID, id),
		attribute.String(AttrRecordURL, url),
	))
}

// RecordError records err on span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LoggerWithTrace returns logger enriched with the trace and span IDs in ctx.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", span.SpanContext().TraceID().String()),
		slog.String("span_id", span.SpanContext().SpanID().String()),
	)
}
