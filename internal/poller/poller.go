// Package poller ingests postings from sources into the job queue.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// Enqueuer is the part of the queue store ingestion writes to.
type Enqueuer interface {
	EnqueueOrUpdate(ctx context.Context, p model.Posting) (model.QueueRecord, error)
}

// PollResult counts what one poll did.
type PollResult struct {
	Fetched  int
	Matched  int
	Enqueued int
}

// SourcePoller owns the ingest pipeline for a single source:
// fetch → filter → normalize → dedup → enqueue → mark seen.
type SourcePoller struct {
	Name   string
	source model.PostingSource
	filter model.PostingFilter
	seen   model.SeenStore
	queue  Enqueuer
	logger *slog.Logger
}

// NewSourcePoller creates a poller wired with all its dependencies.
func NewSourcePoller(
	name string,
	source model.PostingSource,
	filter model.PostingFilter,
	seen model.SeenStore,
	queue Enqueuer,
	logger *slog.Logger,
) *SourcePoller {
	return &SourcePoller{
		Name:   name,
		source: source,
		filter: filter,
		seen:   seen,
		queue:  queue,
		logger: logger,
	}
}

// Poll runs one ingest cycle. A URL is marked seen only after it is queued,
// so a failed enqueue is retried on the next poll.
func (p *SourcePoller) Poll(ctx context.Context) (PollResult, error) {
	var res PollResult

	postings, err := p.source.FetchPostings(ctx)
	if err != nil {
		return res, fmt.Errorf("polling %s: %w", p.Name, err)
	}
	res.Fetched = len(postings)

	for _, posting := range postings {
		if !p.filter.Match(posting) {
			continue
		}
		res.Matched++

		posting.URL = model.NormalizeURL(posting.URL)
		if posting.URL == "" {
			p.logger.Debug("skipping posting without url", "source", p.Name, "title", posting.Title)
			continue
		}

		seen, err := p.seen.HasSeen(posting.URL)
		if err != nil {
			return res, fmt.Errorf("polling %s: checking seen status: %w", p.Name, err)
		}
		if seen {
			continue
		}

		if _, err := p.queue.EnqueueOrUpdate(ctx, posting); err != nil {
			return res, fmt.Errorf("polling %s: enqueueing %s: %w", p.Name, posting.URL, err)
		}
		if err := p.seen.MarkSeen(posting.URL); err != nil {
			return res, fmt.Errorf("polling %s: marking seen: %w", p.Name, err)
		}
		res.Enqueued++
	}

	p.logger.Info("polled source",
		"source", p.Name,
		"fetched", res.Fetched,
		"matched", res.Matched,
		"enqueued", res.Enqueued,
	)
	return res, nil
}

// Ingester polls every source once per call.
type Ingester struct {
	pollers []*SourcePoller
	seen    model.SeenStore
	gap     time.Duration
	seenTTL time.Duration
	logger  *slog.Logger
}

// NewIngester creates an ingester. gap is the pause between sources; seenTTL,
// when positive, bounds how long a URL is remembered.
func NewIngester(pollers []*SourcePoller, seen model.SeenStore, gap, seenTTL time.Duration, logger *slog.Logger) *Ingester {
	return &Ingester{
		pollers: pollers,
		seen:    seen,
		gap:     gap,
		seenTTL: seenTTL,
		logger:  logger,
	}
}

// Ingest polls all sources sequentially. A failing source is logged and
// skipped. The total of enqueued postings is returned; the error is non-nil
// only when ctx was cancelled.
func (in *Ingester) Ingest(ctx context.Context) (int, error) {
	if in.seenTTL > 0 {
		if err := in.seen.Cleanup(in.seenTTL); err != nil {
			in.logger.Warn("seen url cleanup failed", "error", err)
		}
	}

	total := 0
	for i, p := range in.pollers {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		res, err := p.Poll(ctx)
		total += res.Enqueued
		if err != nil {
			in.logger.Error("poll failed", "source", p.Name, "error", err)
		}

		// Small pause between sources, except after the last one.
		if i < len(in.pollers)-1 && in.gap > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(in.gap):
			}
		}
	}

	in.logger.Info("ingest finished", "sources", len(in.pollers), "enqueued", total)
	return total, nil
}
