package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu     sync.Mutex
	events []Event
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) InsertEvent(ctx context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) QueryEvents(ctx context.Context, f Filter) ([]Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []Event
	for _, e := range m.events {
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.ActorUserID != nil && (e.ActorUserID == nil || *e.ActorUserID != *f.ActorUserID) {
			continue
		}
		if f.ResourceType != "" && e.ResourceType != f.ResourceType {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	limit := NormalizeLimit(f.Limit)
	start := f.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []Event
	deleted := 0
	for _, e := range m.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return deleted, nil
}
