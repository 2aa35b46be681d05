package sse

import (
	"context"
	"sync"
)

// Store persists a short replay history for Last-Event-ID recovery.
type Store interface {
	Append(ctx context.Context, event Event) error
	GetSince(ctx context.Context, channel, lastEventID string, limit int) ([]Event, error)
	Close() error
}

// InMemoryStore keeps the last maxSize events of every channel.
type InMemoryStore struct {
	mu      sync.RWMutex
	maxSize int
	events  map[string][]Event
}

// NewInMemoryStore creates an in-memory replay store.
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &InMemoryStore{
		maxSize: maxSize,
		events:  make(map[string][]Event),
	}
}

// Append stores one event in its channel buffer, evicting the oldest.
func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := append(s.events[event.Channel], event)
	if len(events) > s.maxSize {
		events = events[len(events)-s.maxSize:]
	}
	s.events[event.Channel] = events
	return nil
}

// GetSince returns the events of channel newer than lastEventID, oldest
// first, keeping the newest limit. An empty lastEventID returns nothing: a
// fresh subscriber only wants what happens next.
func (s *InMemoryStore) GetSince(_ context.Context, channel, lastEventID string, limit int) ([]Event, error) {
	if lastEventID == "" {
		return []Event{}, nil
	}
	s.mu.RLock()
	events := append([]Event(nil), s.events[channel]...)
	s.mu.RUnlock()

	out := make([]Event, 0, len(events))
	for _, evt := range events {
		if evt.ID > lastEventID {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Close is a no-op for in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
