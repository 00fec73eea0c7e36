package marketplace

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory marketplace store for demo/development mode.
type MemoryStore struct {
	users        map[string]*User
	cards        map[string]*GiftCard
	listings     map[string]*Listing
	transactions map[string]*Transaction
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory marketplace store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*User),
		cards:        make(map[string]*GiftCard),
		listings:     make(map[string]*Listing),
		transactions: make(map[string]*Transaction),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByConnectAccount(ctx context.Context, accountID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.StripeConnectAccountID == accountID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryStore) UpdateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateCard(ctx context.Context, card *GiftCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *card
	m.cards[card.ID] = &cp
	return nil
}

func (m *MemoryStore) GetCard(ctx context.Context, id string) (*GiftCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	card, ok := m.cards[id]
	if !ok {
		return nil, ErrCardNotFound
	}
	cp := *card
	return &cp, nil
}

func (m *MemoryStore) ListCardsByOwner(ctx context.Context, ownerID string, limit int) ([]*GiftCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*GiftCard
	for _, card := range m.cards {
		if card.OwnerID == ownerID {
			cp := *card
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) GetListing(ctx context.Context, id string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ActiveListingForCard(ctx context.Context, cardID string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.listings {
		if l.GiftCardID == cardID && l.Status == ListingActive {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrListingNotFound
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) GetTransactionBySession(ctx context.Context, sessionID string) (*Transaction, error) {
	if sessionID == "" {
		return nil, ErrTransactionNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.transactions {
		if tx.Payment.CheckoutSessionID == sessionID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryStore) GetTransactionByIntent(ctx context.Context, intentID string) (*Transaction, error) {
	if intentID == "" {
		return nil, ErrTransactionNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.transactions {
		if tx.Payment.PaymentIntentID == intentID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *MemoryStore) ListTransactionsForUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Transaction
	for _, tx := range m.transactions {
		if tx.BuyerID == userID || tx.SellerID == userID {
			cp := *tx
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

func (m *MemoryStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Transaction
	for _, tx := range m.transactions {
		if tx.Open() && tx.ExpiresAt.Before(before) {
			cp := *tx
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// Apply commits all records in the mutation under one lock: versions are
// checked first, then every record lands with its version bumped. The input
// structs' versions are bumped too so callers hold current state.
func (m *MemoryStore) Apply(ctx context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Phase 1: version checks, no writes
	if mut.Transaction != nil {
		stored, ok := m.transactions[mut.Transaction.ID]
		if !ok {
			return ErrTransactionNotFound
		}
		if stored.Version != mut.Transaction.Version {
			return ErrVersionConflict
		}
	}
	for _, card := range mut.Cards {
		stored, ok := m.cards[card.ID]
		if !ok {
			return ErrCardNotFound
		}
		if stored.Version != card.Version {
			return ErrVersionConflict
		}
	}
	for _, l := range mut.Listings {
		stored, ok := m.listings[l.ID]
		if !ok {
			return ErrListingNotFound
		}
		if stored.Version != l.Version {
			return ErrVersionConflict
		}
	}

	// Phase 2: commit
	if mut.Transaction != nil {
		mut.Transaction.Version++
		cp := *mut.Transaction
		m.transactions[cp.ID] = &cp
	}
	for _, card := range mut.Cards {
		card.Version++
		cp := *card
		m.cards[cp.ID] = &cp
	}
	for _, l := range mut.Listings {
		l.Version++
		cp := *l
		m.listings[cp.ID] = &cp
	}
	if mut.NewTransaction != nil {
		cp := *mut.NewTransaction
		m.transactions[cp.ID] = &cp
	}
	if mut.NewListing != nil {
		cp := *mut.NewListing
		m.listings[cp.ID] = &cp
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
