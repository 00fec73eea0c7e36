package webhookin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
	"github.com/MonsoudZ/Cardly/internal/metrics"
	"github.com/MonsoudZ/Cardly/internal/payments"
)

// ErrDispatch marks a failure inside an event handler. The ledger row is
// already flagged processed with the error text when this surfaces; replays
// of the same event will short-circuit instead of retrying the side effect.
var ErrDispatch = errors.New("webhook dispatch failed")

// EventVerifier checks a raw payload's signature and parses the event.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (*payments.Event, error)
}

// Processor deduplicates and dispatches inbound provider events.
type Processor struct {
	store       Store
	coordinator *payments.Coordinator
	verifier    EventVerifier
	logger      *slog.Logger
	locks       sync.Map // per-event-ID locks: one dispatch per event, ever
}

// NewProcessor creates a new webhook processor.
func NewProcessor(store Store, coordinator *payments.Coordinator, verifier EventVerifier, logger *slog.Logger) *Processor {
	return &Processor{
		store:       store,
		coordinator: coordinator,
		verifier:    verifier,
		logger:      logger,
	}
}

func (p *Processor) eventLock(id string) *sync.Mutex {
	v, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Process verifies, deduplicates, and dispatches one delivery.
//
// Returns nil for both a fresh successful dispatch and an idempotent replay.
// payments.ErrSignature means the payload was rejected at the boundary with
// no ledger write; ErrDispatch means the handler failed after the row was
// recorded.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := p.verifier.VerifyEvent(payload, signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	// Everything from ledger lookup to the processed flag is one critical
	// section per event ID; concurrent deliveries of the same event wait here.
	mu := p.eventLock(event.ID)
	mu.Lock()
	defer mu.Unlock()

	if rec, err := p.store.Get(ctx, event.ID); err == nil && rec.Processed {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		p.logger.Debug("duplicate webhook delivery short-circuited", "eventId", event.ID)
		return nil
	} else if err != nil && !errors.Is(err, ErrEventNotFound) {
		return err
	}

	now := time.Now()
	if err := p.store.Insert(ctx, &EventRecord{
		EventID:   event.ID,
		Type:      event.Type,
		Payload:   json.RawMessage(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	if err := p.dispatch(ctx, event); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("failed").Inc()
		p.logger.Error("webhook dispatch failed",
			"eventId", event.ID,
			"type", event.Type,
			"error", err,
		)
		if markErr := p.store.MarkProcessed(ctx, event.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to record webhook dispatch failure",
				"eventId", event.ID, "error", markErr)
		}
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	if err := p.store.MarkProcessed(ctx, event.ID, ""); err != nil {
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues("processed").Inc()
	return nil
}

// dispatch routes the event by type. Unknown types are accepted and ignored
// so new provider event types never bounce deliveries.
func (p *Processor) dispatch(ctx context.Context, event *payments.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(ctx, event)
	case "payment_intent.succeeded":
		_, err := p.coordinator.ConfirmIntent(ctx, getString(event.Object, "id"), metadataTxID(event.Object))
		return ignoreMissing(err)
	case "payment_intent.payment_failed":
		_, err := p.coordinator.FailIntent(ctx, getString(event.Object, "id"), metadataTxID(event.Object))
		return ignoreMissing(err)
	case "account.updated":
		return p.handleAccountUpdated(ctx, event)
	case "transfer.created":
		return p.handleTransferCreated(ctx, event)
	default:
		p.logger.Debug("ignoring webhook event type", "type", event.Type)
		return nil
	}
}

func (p *Processor) handleCheckoutCompleted(ctx context.Context, event *payments.Event) error {
	// Async payment methods complete the session before funds clear; the
	// session arrives with payment_status "unpaid" and a later
	// payment_intent.succeeded carries the confirmation. Ownership must not
	// move until the money does.
	if getString(event.Object, "payment_status") != "paid" {
		p.logger.Debug("checkout session completed without payment, ignoring",
			"sessionId", getString(event.Object, "id"),
			"paymentStatus", getString(event.Object, "payment_status"),
		)
		return nil
	}

	sessionID := getString(event.Object, "id")
	intentID := paymentIntentID(event.Object)

	_, err := p.coordinator.ConfirmSession(ctx, sessionID, intentID)
	if errors.Is(err, marketplace.ErrTransactionNotFound) {
		// Session opened outside this process; fall back to metadata
		if txID := metadataTxID(event.Object); txID != "" {
			_, err = p.coordinator.ConfirmIntent(ctx, intentID, txID)
			return ignoreMissing(err)
		}
		return nil
	}
	return err
}

func (p *Processor) handleAccountUpdated(ctx context.Context, event *payments.Event) error {
	accountID := getString(event.Object, "id")
	onboarded := getBool(event.Object, "details_submitted")
	payoutsEnabled := getBool(event.Object, "payouts_enabled")

	err := p.coordinator.UpdateConnectAccount(ctx, accountID, onboarded, payoutsEnabled)
	if errors.Is(err, marketplace.ErrUserNotFound) {
		// Account not linked to any seller here; nothing to update
		return nil
	}
	return err
}

func (p *Processor) handleTransferCreated(ctx context.Context, event *payments.Event) error {
	txID := metadataTxID(event.Object)
	if txID == "" {
		return nil
	}
	// Only a transfer the provider reports as moving (or already settled)
	// marks the payout done
	if status := getString(event.Object, "status"); status != "" && status != "paid" && status != "pending" {
		return nil
	}
	_, err := p.coordinator.CompleteTransfer(ctx, txID, getString(event.Object, "id"))
	return ignoreMissing(err)
}

// ignoreMissing drops not-found errors: events for transactions this system
// never saw are accepted and ignored like unknown event types.
func ignoreMissing(err error) error {
	if errors.Is(err, marketplace.ErrTransactionNotFound) {
		return nil
	}
	return err
}

func getString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func getBool(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

// paymentIntentID handles the two shapes Stripe sends: a bare ID string or
// an expanded object.
func paymentIntentID(obj map[string]any) string {
	switch v := obj["payment_intent"].(type) {
	case string:
		return v
	case map[string]any:
		return getString(v, "id")
	}
	return ""
}

func metadataTxID(obj map[string]any) string {
	meta, _ := obj["metadata"].(map[string]any)
	if meta == nil {
		return ""
	}
	return getString(meta, "transaction_id")
}
