// Package payments bridges accepted sales to actual fund movement.
//
// The Coordinator owns the settlement leg: it computes the fee split in
// integer cents, opens a checkout session with the external provider, and
// finalizes or fails the payment when confirmed events arrive. The Provider
// interface is the full capability surface the platform needs from the
// payment processor; StripeProvider implements it, FakeProvider scripts it
// for tests.
package payments

import (
	"context"
	"errors"
	"fmt"
)

// ErrSignature marks a webhook payload that failed signature verification
// or could not be parsed. Rejected at the boundary, before any ledger write.
var ErrSignature = errors.New("webhook signature verification failed")

// ProviderError wraps a failure from the external payment provider.
// Callers surface a generic retry-safe message; the wrapped error stays in
// logs only.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider error during %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is a provider failure.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// CheckoutSessionRequest carries everything the provider needs to open a
// hosted checkout session.
type CheckoutSessionRequest struct {
	CustomerID    string
	AmountCents   int64
	Currency      string
	Description   string
	TransactionID string
	SuccessURL    string
	CancelURL     string
}

// CheckoutInfo identifies an opened checkout session.
type CheckoutInfo struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// SessionInfo is the provider's view of an existing checkout session.
type SessionInfo struct {
	SessionID       string
	PaymentStatus   string // "paid", "unpaid", "no_payment_required"
	PaymentIntentID string
	TransactionID   string // From session metadata
}

// Event is a verified inbound provider event.
type Event struct {
	ID     string
	Type   string
	Object map[string]any // The event's data object, decoded
}

// Provider is the capability interface onto the external payment processor.
type Provider interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutInfo, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	CreateConnectedAccount(ctx context.Context, email string) (string, error)

	// VerifyEvent checks the payload signature and parses the event.
	// ErrSignature on verification or parse failure.
	VerifyEvent(payload []byte, signature string) (*Event, error)
}
