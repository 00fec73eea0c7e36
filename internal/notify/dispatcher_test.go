package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestDispatcher_DeliversSignedIntent(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotSig, gotEvent string
	received := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSig = r.Header.Get("X-Cardly-Signature")
		gotEvent = r.Header.Get("X-Cardly-Event")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		received <- struct{}{}
	}))
	defer srv.Close()

	store := NewMemorySubscriptionStore()
	sub := &Subscription{
		ID:        "sub_1",
		UserID:    "usr_1",
		URL:       srv.URL,
		Secret:    "whsec_test",
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := NewDispatcher(store)
	d.Emit(context.Background(), Intent{
		Kind:          KindOfferAccepted,
		RecipientID:   "usr_1",
		TransactionID: "txn_1",
	})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotEvent != string(KindOfferAccepted) {
		t.Errorf("X-Cardly-Event = %q, want %q", gotEvent, KindOfferAccepted)
	}
	h := hmac.New(sha256.New, []byte("whsec_test"))
	h.Write(gotBody)
	want := hex.EncodeToString(h.Sum(nil))
	if gotSig != want {
		t.Errorf("signature mismatch: got %q want %q", gotSig, want)
	}
}

func TestDispatcher_FiltersByKindAndActive(t *testing.T) {
	var hits int
	var mu sync.Mutex
	received := make(chan struct{}, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		received <- struct{}{}
	}))
	defer srv.Close()

	store := NewMemorySubscriptionStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Subscription{
		ID: "sub_disputes", UserID: "usr_1", URL: srv.URL, Active: true,
		Kinds: []Kind{KindDisputeOpened}, CreatedAt: time.Now(),
	})
	_ = store.Create(ctx, &Subscription{
		ID: "sub_inactive", UserID: "usr_1", URL: srv.URL, Active: false,
		CreatedAt: time.Now(),
	})

	d := NewDispatcher(store)

	// Not subscribed to offer kinds, nothing should arrive
	d.Emit(ctx, Intent{Kind: KindNewOffer, RecipientID: "usr_1"})
	select {
	case <-received:
		t.Fatal("kind filter did not apply")
	case <-time.After(200 * time.Millisecond):
	}

	// The dispute kind matches the one active subscription
	d.Emit(ctx, Intent{Kind: KindDisputeOpened, RecipientID: "usr_1"})
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed kind never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("deliveries = %d, want 1", hits)
	}
}

func TestRecorder_CollectsByKind(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	r.Emit(ctx, Intent{Kind: KindNewOffer, RecipientID: "usr_a"})
	r.Emit(ctx, Intent{Kind: KindOfferAccepted, RecipientID: "usr_a"})
	r.Emit(ctx, Intent{Kind: KindNewOffer, RecipientID: "usr_b"})

	if got := len(r.Intents()); got != 3 {
		t.Fatalf("total intents = %d, want 3", got)
	}
	if got := len(r.ByKind(KindNewOffer)); got != 2 {
		t.Errorf("new offer intents = %d, want 2", got)
	}

	r.Reset()
	if got := len(r.Intents()); got != 0 {
		t.Errorf("intents after reset = %d, want 0", got)
	}
}
