package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Its only write path is AppendEntry, so
// it satisfies the append-only contract structurally, without a guard layer.
// Used by tests and by single-process tooling.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEntry(_ context.Context, fill func(prevHash string) (Entry, error)) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := ""
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].Hash
	}
	e, err := fill(prev)
	if err != nil {
		return Entry{}, err
	}
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) ScanAscending(_ context.Context, fn func(Entry) error) error {
	s.mu.Lock()
	snapshot := make([]Entry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, e := range snapshot {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) ListDescending(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Entries returns a copy of the committed entries in append order.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
