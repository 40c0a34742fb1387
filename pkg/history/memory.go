package history

import (
	"context"
	"sync"

	"github.com/quantora/simrun/pkg/run"
)

// MemoryStore keeps history in process memory. Used by tests and one-shot
// CLI invocations that don't need persistence.
type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	entries []run.Summary
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}

	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) Append(_ context.Context, summary run.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]run.Summary{summary}, s.entries...)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}

	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]run.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]run.Summary, len(s.entries))
	copy(out, s.entries)

	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
