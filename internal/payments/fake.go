package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeProvider is a scripted in-memory Provider for tests and demo mode.
type FakeProvider struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*SessionInfo

	// Error hooks; nil means success
	CustomerErr error
	SessionErr  error
	RetrieveErr error
	AccountErr  error
}

// NewFakeProvider creates a new scripted provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		sessions: make(map[string]*SessionInfo),
	}
}

func (f *FakeProvider) CreateCustomer(ctx context.Context, email string) (string, error) {
	if f.CustomerErr != nil {
		return "", &ProviderError{Op: "create_customer", Err: f.CustomerErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("cus_fake_%d", f.seq), nil
}

func (f *FakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutInfo, error) {
	if f.SessionErr != nil {
		return nil, &ProviderError{Op: "create_checkout_session", Err: f.SessionErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("cs_fake_%d", f.seq)
	f.sessions[id] = &SessionInfo{
		SessionID:     id,
		PaymentStatus: "unpaid",
		TransactionID: req.TransactionID,
	}
	return &CheckoutInfo{SessionID: id, URL: "https://checkout.example/" + id}, nil
}

func (f *FakeProvider) RetrieveSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if f.RetrieveErr != nil {
		return nil, &ProviderError{Op: "retrieve_session", Err: f.RetrieveErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.sessions[sessionID]
	if !ok {
		return nil, &ProviderError{Op: "retrieve_session", Err: fmt.Errorf("no such session %s", sessionID)}
	}
	cp := *info
	return &cp, nil
}

func (f *FakeProvider) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	if f.AccountErr != nil {
		return "", &ProviderError{Op: "create_connected_account", Err: f.AccountErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("acct_fake_%d", f.seq), nil
}

// MarkPaid scripts a session as paid with the given intent ID.
func (f *FakeProvider) MarkPaid(sessionID, paymentIntentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.sessions[sessionID]; ok {
		info.PaymentStatus = "paid"
		info.PaymentIntentID = paymentIntentID
	}
}

// VerifyEvent accepts any JSON payload whose signature is "valid".
func (f *FakeProvider) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if signature != "valid" {
		return nil, ErrSignature
	}
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object map[string]any `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrSignature
	}
	return &Event{ID: raw.ID, Type: raw.Type, Object: raw.Data.Object}, nil
}

var _ Provider = (*FakeProvider)(nil)
