package match

import (
	"context"
	"sort"
	"sync"
)

// memstore is a development and test store holding everything in process.
// It honors the same version discipline as the Redis store.
type memstore struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

func NewMemoryStore() Store {
	return &memstore{matches: make(map[string]*Match)}
}

func (s *memstore) GetMatch(ctx context.Context, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *memstore) CreateMatch(ctx context.Context, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *memstore) ConditionalUpdateMatch(ctx context.Context, id string, expectedVersion int64, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.matches[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	next := m.Clone()
	next.Version = expectedVersion + 1
	s.matches[id] = next
	m.Version = next.Version
	return nil
}

func (s *memstore) DeleteMatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, id)
	return nil
}

func (s *memstore) ListOngoingExhibition(ctx context.Context) ([]*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Match
	for _, m := range s.matches {
		if m.Status == StatusOngoing && m.Exhibition() {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMoveAt.After(out[j].LastMoveAt) })
	return out, nil
}
