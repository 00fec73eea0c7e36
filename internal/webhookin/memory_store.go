package webhookin

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory event ledger for demo/development mode.
type MemoryStore struct {
	events map[string]*EventRecord
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory event ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]*EventRecord),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, rec *EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[rec.EventID]; ok {
		return nil
	}
	cp := *rec
	m.events[rec.EventID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, eventID string) (*EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, eventID, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	rec.Processed = true
	rec.ErrorMessage = errorMessage
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListFailed(ctx context.Context, limit int) ([]*EventRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*EventRecord
	for _, rec := range m.events {
		if rec.Processed && rec.ErrorMessage != "" {
			cp := *rec
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
