package store

import (
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

var _ model.SeenStore = (*NopStore)(nil)

// NopStore never remembers anything, so every fetched posting is treated as
// new. Used for dry-run ingestion.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) HasSeen(string) (bool, error) { return false, nil }
func (s *NopStore) MarkSeen(string) error        { return nil }
func (s *NopStore) Cleanup(time.Duration) error  { return nil }
