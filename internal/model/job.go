package model

import (
	"context"
	"time"
)

// NoDescription is stored when a posting has no description. It is a valid
// value, not an error.
const NoDescription = "No description available"

// Posting is a raw job posting as produced by a source (ATS board, scraper).
type Posting struct {
	Title       string
	Company     string
	URL         string
	Description string // may be empty
	Location    string // optional, used only for filtering
	Source      string // source name, e.g. "greenhouse"
}

// Status is the processing state of a queued record.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDone, StatusFailed:
		return true
	}
	return false
}

// QueueRecord is a posting persisted in the queue store.
type QueueRecord struct {
	ID          string // assigned on first insertion, stable across updates
	Seq         int64  // insertion sequence, FIFO tie-breaker
	URL         string // normalized, unique
	Title       string
	Company     string
	Description string
	Status      Status
	LastError   string // diagnostic text of the last failure
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64 // bumped by every write
}

// Posting returns the record's content as a Posting.
func (r QueueRecord) Posting() Posting {
	return Posting{
		Title:       r.Title,
		Company:     r.Company,
		URL:         r.URL,
		Description: r.Description,
	}
}

// Cursor marks a position in FIFO order. The zero Cursor is before every record.
type Cursor struct {
	CreatedAt time.Time
	Seq       int64
}

// After returns the cursor positioned at r.
func (r QueueRecord) After() Cursor {
	return Cursor{CreatedAt: r.CreatedAt, Seq: r.Seq}
}

// QueueStore persists queue records keyed by normalized URL.
type QueueStore interface {
	// EnqueueOrUpdate inserts p, or overwrites the content of the record with
	// the same URL and resets it to pending. ID and CreatedAt are preserved.
	EnqueueOrUpdate(ctx context.Context, p Posting) (QueueRecord, error)
	// DequeueOldestPending returns the oldest pending record or nil. It does
	// not change the record's status.
	DequeueOldestPending(ctx context.Context) (*QueueRecord, error)
	// NextPending is DequeueOldestPending restricted to records after cur.
	NextPending(ctx context.Context, cur Cursor) (*QueueRecord, error)
	// MarkDone and MarkFailed settle rec. When rec.Version is non-zero the
	// write only applies if the stored record still has that version;
	// otherwise ErrRecordChanged is returned and the record is left as is.
	MarkDone(ctx context.Context, rec QueueRecord, finalDescription string) error
	MarkFailed(ctx context.Context, rec QueueRecord, errText string) error
}

// SeenStore tracks which posting URLs have already been ingested.
type SeenStore interface {
	HasSeen(url string) (bool, error)
	MarkSeen(url string) error
	Cleanup(olderThan time.Duration) error
}

// PostingSource fetches postings from one source.
type PostingSource interface {
	FetchPostings(ctx context.Context) ([]Posting, error)
}

// PostingFilter decides whether a posting is worth queueing.
type PostingFilter interface {
	Match(p Posting) bool
}

// ResumeProvider returns the candidate's resume as plain text.
type ResumeProvider interface {
	ResumeText(ctx context.Context) (string, error)
}

// Comparator compares a posting against a resume.
type Comparator interface {
	Compare(ctx context.Context, p Posting, resumeText string) (Assessment, error)
}

// Notifier delivers match notifications and run announcements.
type Notifier interface {
	// Notify delivers message for a. Implementations apply their own
	// threshold and swallow delivery failures after logging them.
	Notify(ctx context.Context, a Assessment, message string) error
	// Announce sends a lifecycle banner.
	Announce(ctx context.Context, text string) error
}
