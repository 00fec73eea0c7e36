// Package webhookin accepts signed provider webhook deliveries and dispatches
// each event exactly once.
//
// The provider retries deliveries, sometimes concurrently, so every event
// gets a ledger row keyed by its provider event ID. A row already marked
// processed short-circuits the delivery as a successful no-op; anything that
// fails during dispatch is recorded on the row for operator follow-up.
package webhookin

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrEventNotFound is returned when no ledger row exists for an event ID.
var ErrEventNotFound = errors.New("webhook event not found")

// EventRecord is one row of the inbound event ledger. Created once per
// provider event; only the processed flag and error text ever change.
type EventRecord struct {
	EventID      string          `json:"eventId"`
	Type         string          `json:"type"`
	Processed    bool            `json:"processed"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Store persists the webhook event ledger.
type Store interface {
	// Insert records the event, ignoring a duplicate event ID.
	Insert(ctx context.Context, rec *EventRecord) error
	Get(ctx context.Context, eventID string) (*EventRecord, error)
	// MarkProcessed flags the row done, with error text when dispatch failed.
	MarkProcessed(ctx context.Context, eventID, errorMessage string) error
	ListFailed(ctx context.Context, limit int) ([]*EventRecord, error)
}
