// Package notify carries notification intents out of the core.
//
// State transitions in the marketplace, payments, and disputes packages emit
// an Intent per recipient instead of sending mail themselves. A Sink consumes
// intents; the delivery layer (mail, push) is an external collaborator. The
// Dispatcher in this package forwards intents to per-user registered webhook
// URLs for integrations that want them.
package notify

import (
	"context"
	"sync"
	"time"
)

// Kind identifies the event a notification intent describes.
type Kind string

const (
	KindNewOffer             Kind = "offer.new"
	KindOfferAccepted        Kind = "offer.accepted"
	KindOfferRejected        Kind = "offer.rejected"
	KindOfferCancelled       Kind = "offer.cancelled"
	KindOfferExpired         Kind = "offer.expired"
	KindCounterOffer         Kind = "offer.countered"
	KindCounterAccepted      Kind = "offer.counter_accepted"
	KindCounterRejected      Kind = "offer.counter_rejected"
	KindPaymentFailed        Kind = "payment.failed"
	KindDisputeOpened        Kind = "dispute.opened"
	KindDisputeStatusChanged Kind = "dispute.status_changed"
	KindDisputeNewMessage    Kind = "dispute.new_message"
	KindDisputeResolved      Kind = "dispute.resolved"
)

// Intent is a single notification request for a single recipient.
type Intent struct {
	Kind          Kind              `json:"kind"`
	RecipientID   string            `json:"recipientId"`
	TransactionID string            `json:"transactionId,omitempty"`
	DisputeID     string            `json:"disputeId,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Sink consumes notification intents. Implementations must not block the
// emitting transition; slow delivery belongs behind a queue or goroutine.
type Sink interface {
	Emit(ctx context.Context, intent Intent)
}

// Discard is a Sink that drops all intents.
type Discard struct{}

func (Discard) Emit(context.Context, Intent) {}

// Recorder is an in-memory Sink for tests.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
}

// NewRecorder creates a new recording sink.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, intent Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}
	r.intents = append(r.intents, intent)
}

// Intents returns a copy of all recorded intents.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, len(r.intents))
	copy(out, r.intents)
	return out
}

// ByKind returns recorded intents of the given kind.
func (r *Recorder) ByKind(kind Kind) []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Intent
	for _, in := range r.intents {
		if in.Kind == kind {
			out = append(out, in)
		}
	}
	return out
}

// Reset clears recorded intents.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = nil
}
