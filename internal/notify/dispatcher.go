package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Subscription is a user-registered webhook URL for notification intents.
type Subscription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	URL         string     `json:"url"`
	Secret      string     `json:"-"` // Used for HMAC signing
	Kinds       []Kind     `json:"kinds"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// SubscriptionStore persists webhook subscriptions.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByUser(ctx context.Context, userID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher delivers notification intents to a recipient's registered
// webhook URLs. It implements Sink.
type Dispatcher struct {
	store  SubscriptionStore
	client *http.Client
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(store SubscriptionStore) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Emit forwards the intent to the recipient's active subscriptions.
func (d *Dispatcher) Emit(ctx context.Context, intent Intent) {
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}

	subs, err := d.store.GetByUser(ctx, intent.RecipientID)
	if err != nil {
		return
	}

	for _, sub := range subs {
		if !sub.Active || !subscribed(sub, intent.Kind) {
			continue
		}
		// Send async to avoid blocking the emitting transition
		go d.send(context.WithoutCancel(ctx), sub, intent)
	}
}

func subscribed(sub *Subscription, kind Kind) bool {
	if len(sub.Kinds) == 0 {
		return true
	}
	for _, k := range sub.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, intent Intent) {
	payload, err := json.Marshal(intent)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal intent")
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		d.updateError(ctx, sub, "failed to create request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cardly-Event", string(intent.Kind))
	req.Header.Set("X-Cardly-Timestamp", fmt.Sprintf("%d", intent.CreatedAt.Unix()))

	if sub.Secret != "" {
		req.Header.Set("X-Cardly-Signature", sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.updateError(ctx, sub, fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.updateSuccess(ctx, sub)
	} else {
		d.updateError(ctx, sub, fmt.Sprintf("status %d", resp.StatusCode))
	}
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	_ = d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	_ = d.store.Update(ctx, sub)
}

// Fanout emits each intent to every configured sink.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, intent Intent) {
	for _, s := range f {
		s.Emit(ctx, intent)
	}
}
