package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// --- Fakes ---

// MockSource returns canned postings or an error.
type MockSource struct {
	Postings []model.Posting
	Err      error
	Calls    int
}

func (m *MockSource) FetchPostings(_ context.Context) ([]model.Posting, error) {
	m.Calls++
	return m.Postings, m.Err
}

// InMemoryStore is a map-based seen store.
type InMemoryStore struct {
	seen       map[string]bool
	cleanedTTL time.Duration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]bool)}
}

func (s *InMemoryStore) HasSeen(url string) (bool, error) { return s.seen[url], nil }

func (s *InMemoryStore) MarkSeen(url string) error {
	s.seen[url] = true
	return nil
}

func (s *InMemoryStore) Cleanup(olderThan time.Duration) error {
	s.cleanedTTL = olderThan
	return nil
}

// RecordingQueue records enqueued postings and can fail on demand.
type RecordingQueue struct {
	Enqueued []model.Posting
	Err      error
}

func (q *RecordingQueue) EnqueueOrUpdate(_ context.Context, p model.Posting) (model.QueueRecord, error) {
	if q.Err != nil {
		return model.QueueRecord{}, q.Err
	}
	q.Enqueued = append(q.Enqueued, p)
	return model.QueueRecord{URL: p.URL, Status: model.StatusPending}, nil
}

// TitleFilter matches postings whose title is in the allowed set.
type TitleFilter map[string]bool

func (f TitleFilter) Match(p model.Posting) bool { return f[p.Title] }

type AcceptAllFilter struct{}

func (AcceptAllFilter) Match(model.Posting) bool { return true }

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postings(urls ...string) []model.Posting {
	out := make([]model.Posting, len(urls))
	for i, u := range urls {
		out[i] = model.Posting{Title: "Engineer " + u, Company: "Acme", URL: u}
	}
	return out
}

// --- Tests ---

func TestPoll_EnqueuesNewPostingsAndMarksSeen(t *testing.T) {
	src := &MockSource{Postings: postings("https://x/1", "https://x/2")}
	seen := NewInMemoryStore()
	q := &RecordingQueue{}
	p := NewSourcePoller("acme", src, AcceptAllFilter{}, seen, q, discardLogger())

	res, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != (PollResult{Fetched: 2, Matched: 2, Enqueued: 2}) {
		t.Errorf("unexpected result %+v", res)
	}
	if len(q.Enqueued) != 2 {
		t.Fatalf("expected 2 enqueued, got %d", len(q.Enqueued))
	}
	if !seen.seen["https://x/1"] || !seen.seen["https://x/2"] {
		t.Error("expected both URLs marked seen")
	}
}

func TestPoll_SkipsSeenOnSecondPoll(t *testing.T) {
	src := &MockSource{Postings: postings("https://x/1")}
	q := &RecordingQueue{}
	p := NewSourcePoller("acme", src, AcceptAllFilter{}, NewInMemoryStore(), q, discardLogger())

	p.Poll(context.Background())
	res, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Enqueued != 0 {
		t.Errorf("expected nothing enqueued on second poll, got %d", res.Enqueued)
	}
	if len(q.Enqueued) != 1 {
		t.Errorf("expected 1 enqueue overall, got %d", len(q.Enqueued))
	}
}

func TestPoll_NormalizesURLBeforeDedup(t *testing.T) {
	src := &MockSource{Postings: []model.Posting{
		{Title: "A", URL: "https://x/1?utm_source=feed"},
		{Title: "A", URL: "https://x/1#apply"},
	}}
	q := &RecordingQueue{}
	p := NewSourcePoller("acme", src, AcceptAllFilter{}, NewInMemoryStore(), q, discardLogger())

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Enqueued) != 1 || q.Enqueued[0].URL != "https://x/1" {
		t.Errorf("expected a single normalized enqueue, got %+v", q.Enqueued)
	}
}

func TestPoll_FilterRejects(t *testing.T) {
	src := &MockSource{Postings: postings("https://x/1", "https://x/2")}
	q := &RecordingQueue{}
	seen := NewInMemoryStore()
	p := NewSourcePoller("acme", src, TitleFilter{"Engineer https://x/2": true}, seen, q, discardLogger())

	res, _ := p.Poll(context.Background())
	if res.Matched != 1 || res.Enqueued != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if seen.seen["https://x/1"] {
		t.Error("filtered posting should not be marked seen")
	}
}

func TestPoll_SkipsEmptyURL(t *testing.T) {
	src := &MockSource{Postings: []model.Posting{{Title: "No link"}}}
	q := &RecordingQueue{}
	p := NewSourcePoller("acme", src, AcceptAllFilter{}, NewInMemoryStore(), q, discardLogger())

	res, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Enqueued != 0 || len(q.Enqueued) != 0 {
		t.Errorf("expected nothing enqueued, got %+v", res)
	}
}

func TestPoll_EnqueueErrorLeavesUnseen(t *testing.T) {
	src := &MockSource{Postings: postings("https://x/1")}
	seen := NewInMemoryStore()
	q := &RecordingQueue{Err: errors.New("db locked")}
	p := NewSourcePoller("acme", src, AcceptAllFilter{}, seen, q, discardLogger())

	if _, err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected error from enqueue")
	}
	if seen.seen["https://x/1"] {
		t.Error("URL must not be marked seen when enqueue fails")
	}
}

func TestPoll_FetchError(t *testing.T) {
	src := &MockSource{Err: errors.New("network down")}
	p := NewSourcePoller("acme", src, AcceptAllFilter{}, NewInMemoryStore(), &RecordingQueue{}, discardLogger())

	if _, err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected error from fetch")
	}
}

func TestIngest_ContinuesPastFailingSource(t *testing.T) {
	seen := NewInMemoryStore()
	q := &RecordingQueue{}
	bad := &MockSource{Err: errors.New("boom")}
	good := &MockSource{Postings: postings("https://y/1", "https://y/2")}

	in := NewIngester([]*SourcePoller{
		NewSourcePoller("bad", bad, AcceptAllFilter{}, seen, q, discardLogger()),
		NewSourcePoller("good", good, AcceptAllFilter{}, seen, q, discardLogger()),
	}, seen, 0, 72*time.Hour, discardLogger())

	n, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 enqueued, got %d", n)
	}
	if bad.Calls != 1 || good.Calls != 1 {
		t.Errorf("expected each source polled once, got bad=%d good=%d", bad.Calls, good.Calls)
	}
	if seen.cleanedTTL != 72*time.Hour {
		t.Errorf("expected cleanup with 72h, got %v", seen.cleanedTTL)
	}
}

func TestIngest_StopsWhenCancelled(t *testing.T) {
	src := &MockSource{Postings: postings("https://x/1")}
	seen := NewInMemoryStore()
	in := NewIngester([]*SourcePoller{
		NewSourcePoller("a", src, AcceptAllFilter{}, seen, &RecordingQueue{}, discardLogger()),
	}, seen, 0, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := in.Ingest(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if src.Calls != 0 {
		t.Errorf("expected no polls after cancel, got %d", src.Calls)
	}
}
