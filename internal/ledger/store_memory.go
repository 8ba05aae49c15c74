package ledger

import (
	"context"
	"sync"

	id "docanchor/pkg/domain"
)

// InMemoryStore keeps stage events in memory, in append order per document.
// Used in tests and when Postgres is not configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.DocumentID][]StageEvent
}

// NewInMemoryStore creates an empty in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.DocumentID][]StageEvent)}
}

// Append persists the event at the end of the document's sequence.
func (s *InMemoryStore) Append(_ context.Context, event StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy metadata so later caller mutation can't rewrite history.
	if event.Metadata != nil {
		meta := make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			meta[k] = v
		}
		event.Metadata = meta
	}
	s.events[event.DocumentID] = append(s.events[event.DocumentID], event)
	return nil
}

// History returns a copy of the document's event sequence in append order.
func (s *InMemoryStore) History(_ context.Context, documentID id.DocumentID) ([]StageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[documentID]
	out := make([]StageEvent, len(events))
	copy(out, events)
	return out, nil
}

// Latest returns the most recent event for the document, or nil.
func (s *InMemoryStore) Latest(_ context.Context, documentID id.DocumentID) (*StageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[documentID]
	if len(events) == 0 {
		return nil, nil
	}
	latest := events[len(events)-1]
	return &latest, nil
}
