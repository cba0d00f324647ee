// Package queue implements the durable job queue on top of SQLite or Postgres.
package queue

import (
	"context"
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

// Store is a model.QueueStore with the maintenance operations used by the
// CLI, the HTTP API and the browser.
type Store interface {
	model.QueueStore
	Get(ctx context.Context, id string) (model.QueueRecord, error)
	List(ctx context.Context, status model.Status, limit int) ([]model.QueueRecord, error)
	Stats(ctx context.Context) (map[model.Status]int, error)
	Requeue(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Close() error
}

// prepare normalizes a posting before it is written.
func prepare(p model.Posting) model.Posting {
	p.URL = model.NormalizeURL(p.URL)
	if strings.TrimSpace(p.Description) == "" {
		p.Description = model.NoDescription
	}
	if strings.TrimSpace(p.Title) == "" {
		p.Title = "No title"
	}
	if strings.TrimSpace(p.Company) == "" {
		p.Company = "No company"
	}
	return p
}
