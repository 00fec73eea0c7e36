package webhookin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
	"github.com/MonsoudZ/Cardly/internal/notify"
	"github.com/MonsoudZ/Cardly/internal/payments"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	store     *marketplace.MemoryStore
	market    *marketplace.Service
	ledger    *MemoryStore
	provider  *payments.FakeProvider
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := marketplace.NewMemoryStore()
	market := marketplace.NewService(store, notify.NewRecorder(), testLogger())
	provider := payments.NewFakeProvider()
	coordinator := payments.NewCoordinator(market, store, provider, payments.DefaultFeeRate, testLogger())
	ledger := NewMemoryStore()
	processor := NewProcessor(ledger, coordinator, provider, testLogger())
	return &fixture{store: store, market: market, ledger: ledger, provider: provider, processor: processor}
}

// checkoutPending walks a sale to the point where a checkout session is
// open, returning the transaction and session ID.
func (f *fixture) checkoutPending(t *testing.T) (*marketplace.Transaction, string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"usr_seller", "usr_buyer"} {
		_ = f.store.CreateUser(ctx, &marketplace.User{
			ID: id, Email: id + "@example.com", CreatedAt: now, UpdatedAt: now,
		})
	}
	_ = f.store.CreateCard(ctx, &marketplace.GiftCard{
		ID: "card_1", OwnerID: "usr_seller", Brand: "Amazon",
		Balance: decimal.NewFromInt(100), Status: marketplace.CardActive,
		CreatedAt: now, UpdatedAt: now,
	})
	listing, err := f.market.CreateListing(ctx, "usr_seller", marketplace.CreateListingRequest{
		GiftCardID: "card_1", Type: "sale", AskingPrice: "90",
	})
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	tx, err := f.market.CreateOffer(ctx, "usr_buyer", marketplace.CreateOfferRequest{ListingID: listing.ID})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := f.market.Accept(ctx, tx.ID, "usr_seller"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	tx, err = f.market.RecordCheckout(ctx, tx.ID, "cs_hook_1", 9000, 450, 8550)
	if err != nil {
		t.Fatalf("RecordCheckout: %v", err)
	}
	return tx, "cs_hook_1"
}

func checkoutCompletedPayload(eventID, sessionID, intentID, txID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": %q,
			"payment_status": "paid",
			"payment_intent": %q,
			"metadata": {"transaction_id": %q}
		}}
	}`, eventID, sessionID, intentID, txID))
}

func TestProcess_CheckoutCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, sessionID := f.checkoutPending(t)

	payload := checkoutCompletedPayload("evt_1", sessionID, "pi_1", tx.ID)
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	fresh, _ := f.market.Get(ctx, tx.ID)
	if fresh.Payment.Status != marketplace.PaymentCompleted {
		t.Fatalf("payment status = %s, want completed", fresh.Payment.Status)
	}
	card, _ := f.store.GetCard(ctx, "card_1")
	if card.OwnerID != "usr_buyer" {
		t.Errorf("card owner = %s, want usr_buyer", card.OwnerID)
	}

	rec, err := f.ledger.Get(ctx, "evt_1")
	if err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if !rec.Processed || rec.ErrorMessage != "" {
		t.Errorf("ledger row = %+v, want processed with no error", rec)
	}
}

func TestProcess_CheckoutCompletedUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, sessionID := f.checkoutPending(t)

	// Async payment methods complete the session before the charge lands;
	// the delivery is accepted but nothing settles.
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_unpaid",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": %q,
			"payment_status": "unpaid",
			"payment_intent": "pi_async",
			"metadata": {"transaction_id": %q}
		}}
	}`, sessionID, tx.ID))
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	fresh, _ := f.market.Get(ctx, tx.ID)
	if fresh.Payment.Status != marketplace.PaymentPending {
		t.Fatalf("payment status = %s, want pending", fresh.Payment.Status)
	}
	if fresh.Status != marketplace.StatusAccepted {
		t.Errorf("transaction status = %s, want accepted", fresh.Status)
	}
	card, _ := f.store.GetCard(ctx, "card_1")
	if card.OwnerID != "usr_seller" {
		t.Errorf("card owner = %s, want usr_seller until funds clear", card.OwnerID)
	}

	rec, err := f.ledger.Get(ctx, "evt_unpaid")
	if err != nil || !rec.Processed || rec.ErrorMessage != "" {
		t.Errorf("unpaid session still gets a clean ledger row, got %+v (%v)", rec, err)
	}

	// The later intent success carries the real confirmation
	confirm := []byte(fmt.Sprintf(`{
		"id": "evt_async_paid",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_async", "metadata": {"transaction_id": %q}}}
	}`, tx.ID))
	if err := f.processor.Process(ctx, confirm, "valid"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	fresh, _ = f.market.Get(ctx, tx.ID)
	if fresh.Payment.Status != marketplace.PaymentCompleted {
		t.Errorf("payment status = %s, want completed after intent succeeds", fresh.Payment.Status)
	}
	card, _ = f.store.GetCard(ctx, "card_1")
	if card.OwnerID != "usr_buyer" {
		t.Errorf("card owner = %s, want usr_buyer after settlement", card.OwnerID)
	}
}

func TestProcess_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, sessionID := f.checkoutPending(t)
	payload := checkoutCompletedPayload("evt_dup", sessionID, "pi_1", tx.ID)

	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	after, _ := f.market.Get(ctx, tx.ID)

	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("replay must succeed, got %v", err)
	}
	replayed, _ := f.market.Get(ctx, tx.ID)
	if replayed.Version != after.Version {
		t.Errorf("replay produced mutations: version %d -> %d", after.Version, replayed.Version)
	}
}

func TestProcess_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, sessionID := f.checkoutPending(t)
	payload := checkoutCompletedPayload("evt_race", sessionID, "pi_1", tx.ID)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.processor.Process(ctx, payload, "valid")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("delivery %d failed: %v", i, err)
		}
	}
	card, _ := f.store.GetCard(ctx, "card_1")
	if card.OwnerID != "usr_buyer" {
		t.Fatalf("card owner = %s, want usr_buyer", card.OwnerID)
	}
}

func TestProcess_BadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.processor.Process(ctx, []byte(`{"id":"evt_bad"}`), "forged")
	if !errors.Is(err, payments.ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
	if _, err := f.ledger.Get(ctx, "evt_bad"); !errors.Is(err, ErrEventNotFound) {
		t.Error("rejected payload must not reach the ledger")
	}
}

func TestProcess_DispatchFailureRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now()

	// A pending offer cannot complete payment, so confirming it fails
	for _, id := range []string{"usr_seller", "usr_buyer"} {
		_ = f.store.CreateUser(ctx, &marketplace.User{ID: id, CreatedAt: now, UpdatedAt: now})
	}
	_ = f.store.CreateCard(ctx, &marketplace.GiftCard{
		ID: "card_1", OwnerID: "usr_seller", Balance: decimal.NewFromInt(50),
		Status: marketplace.CardActive, CreatedAt: now, UpdatedAt: now,
	})
	listing, _ := f.market.CreateListing(ctx, "usr_seller", marketplace.CreateListingRequest{
		GiftCardID: "card_1", Type: "sale", AskingPrice: "40",
	})
	tx, _ := f.market.CreateOffer(ctx, "usr_buyer", marketplace.CreateOfferRequest{ListingID: listing.ID})

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_fail",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_x", "metadata": {"transaction_id": %q}}}
	}`, tx.ID))

	err := f.processor.Process(ctx, payload, "valid")
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}

	rec, err := f.ledger.Get(ctx, "evt_fail")
	if err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}
	if !rec.Processed || rec.ErrorMessage == "" {
		t.Fatalf("ledger row = %+v, want processed with error text", rec)
	}

	// Redelivery short-circuits instead of retrying the failing dispatch
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("replay after failure must short-circuit, got %v", err)
	}
}

func TestProcess_PaymentFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, _ := f.checkoutPending(t)

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_pf",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_declined", "metadata": {"transaction_id": %q}}}
	}`, tx.ID))
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	fresh, _ := f.market.Get(ctx, tx.ID)
	if fresh.Payment.Status != marketplace.PaymentFailed {
		t.Errorf("payment status = %s, want failed", fresh.Payment.Status)
	}
	if fresh.Status != marketplace.StatusAccepted {
		t.Errorf("transaction status = %s, want accepted", fresh.Status)
	}
}

func TestProcess_AccountUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.checkoutPending(t)

	seller, _ := f.store.GetUser(ctx, "usr_seller")
	seller.StripeConnectAccountID = "acct_77"
	_ = f.store.UpdateUser(ctx, seller)

	payload := []byte(`{
		"id": "evt_acct",
		"type": "account.updated",
		"data": {"object": {"id": "acct_77", "details_submitted": true, "payouts_enabled": true}}
	}`)
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	fresh, _ := f.store.GetUser(ctx, "usr_seller")
	if !fresh.ConnectOnboarded || !fresh.ConnectPayoutsEnabled {
		t.Errorf("connect flags not applied: %+v", fresh)
	}
}

func TestProcess_TransferCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx, sessionID := f.checkoutPending(t)

	if err := f.processor.Process(ctx, checkoutCompletedPayload("evt_c", sessionID, "pi_1", tx.ID), "valid"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_tr",
		"type": "transfer.created",
		"data": {"object": {"id": "tr_9", "status": "pending", "metadata": {"transaction_id": %q}}}
	}`, tx.ID))
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	fresh, _ := f.market.Get(ctx, tx.ID)
	if fresh.Payment.PayoutStatus != "completed" || fresh.Payment.TransferID != "tr_9" {
		t.Errorf("payout = %s/%s, want completed/tr_9", fresh.Payment.PayoutStatus, fresh.Payment.TransferID)
	}
}

func TestProcess_UnknownTypeIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payload := []byte(`{"id": "evt_odd", "type": "invoice.finalized", "data": {"object": {}}}`)
	if err := f.processor.Process(ctx, payload, "valid"); err != nil {
		t.Fatalf("unknown event types must be accepted, got %v", err)
	}
	rec, err := f.ledger.Get(ctx, "evt_odd")
	if err != nil || !rec.Processed {
		t.Errorf("unknown events still get a processed ledger row, got %+v (%v)", rec, err)
	}
}
