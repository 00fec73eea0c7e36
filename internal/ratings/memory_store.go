package ratings

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory rating store for demo/development mode.
type MemoryStore struct {
	ratings map[string]*Rating
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory rating store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ratings: make(map[string]*Rating)}
}

func (m *MemoryStore) Create(ctx context.Context, r *Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ratings {
		if existing.TransactionID == r.TransactionID && existing.RaterID == r.RaterID {
			return ErrAlreadyRated
		}
	}
	cp := *r
	m.ratings[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ratings[id]
	if !ok {
		return nil, ErrRatingNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListByTransaction(ctx context.Context, txID string) ([]*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Rating
	for _, r := range m.ratings {
		if r.TransactionID == txID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) ListForUser(ctx context.Context, rateeID string, limit int) ([]*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Rating
	for _, r := range m.ratings {
		if r.RateeID == rateeID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) SummaryForUser(ctx context.Context, rateeID string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := &Summary{UserID: rateeID}
	total := 0
	for _, r := range m.ratings {
		if r.RateeID == rateeID {
			summary.Count++
			total += r.Score
		}
	}
	if summary.Count > 0 {
		summary.Average = float64(total) / float64(summary.Count)
	}
	return summary, nil
}

var _ Store = (*MemoryStore)(nil)
