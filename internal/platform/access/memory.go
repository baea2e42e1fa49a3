package access

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and tooling.
type MemoryStore struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertAccess(_ context.Context, e LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) AccessSummary(_ context.Context, recentLimit int) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{ByUser: map[string]int64{}, Recent: []LogEntry{}}
	for _, e := range s.entries {
		sum.ByUser[e.Actor]++
		sum.Total++
	}
	for i := len(s.entries) - 1; i >= 0 && len(sum.Recent) < recentLimit; i-- {
		sum.Recent = append(sum.Recent, s.entries[i])
	}
	return sum, nil
}
