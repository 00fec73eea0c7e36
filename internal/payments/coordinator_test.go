package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
	"github.com/MonsoudZ/Cardly/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	store       *marketplace.MemoryStore
	market      *marketplace.Service
	provider    *FakeProvider
	coordinator *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := marketplace.NewMemoryStore()
	market := marketplace.NewService(store, notify.NewRecorder(), testLogger())
	provider := NewFakeProvider()
	coordinator := NewCoordinator(market, store, provider, DefaultFeeRate, testLogger()).
		WithRedirectURLs("https://cardly.example/success", "https://cardly.example/cancel")
	return &fixture{store: store, market: market, provider: provider, coordinator: coordinator}
}

// acceptedSale seeds a listing at the given asking price and walks an offer
// to the accepted state, returning the transaction.
func (f *fixture) acceptedSale(t *testing.T, asking, offer string) *marketplace.Transaction {
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
		GiftCardID: "card_1", Type: "sale", AskingPrice: asking,
	})
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	tx, err := f.market.CreateOffer(ctx, "usr_buyer", marketplace.CreateOfferRequest{
		ListingID: listing.ID, Amount: offer,
	})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	tx, err = f.market.Accept(ctx, tx.ID, "usr_seller")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return tx
}

func TestComputeAmounts_FeeSplit(t *testing.T) {
	f := newFixture(t)

	amount, fee, payout := f.coordinator.ComputeAmounts(decimal.RequireFromString("92"))
	if amount != 9200 || fee != 460 || payout != 8740 {
		t.Fatalf("split = %d/%d/%d, want 9200/460/8740", amount, fee, payout)
	}
}

func TestComputeAmounts_SumsExactly(t *testing.T) {
	f := newFixture(t)

	for _, s := range []string{"0.01", "0.03", "1.99", "33.33", "92", "100.05", "12345.67"} {
		amount, fee, payout := f.coordinator.ComputeAmounts(decimal.RequireFromString(s))
		if fee+payout != amount {
			t.Errorf("amount %s: fee %d + payout %d != gross %d", s, fee, payout, amount)
		}
	}
}

func TestInitiateCheckout_FullSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.acceptedSale(t, "90", "92")

	info, tx, err := f.coordinator.InitiateCheckout(ctx, tx.ID, "usr_buyer")
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if tx.Payment.Status != marketplace.PaymentPending {
		t.Fatalf("payment status = %s, want pending", tx.Payment.Status)
	}
	if tx.Payment.AmountCents != 9200 || tx.Payment.FeeCents != 460 || tx.Payment.PayoutCents != 8740 {
		t.Fatalf("persisted split = %d/%d/%d, want 9200/460/8740",
			tx.Payment.AmountCents, tx.Payment.FeeCents, tx.Payment.PayoutCents)
	}

	// Buyer got a provider customer record on first checkout
	buyer, _ := f.store.GetUser(ctx, "usr_buyer")
	if buyer.StripeCustomerID == "" {
		t.Error("expected customer record to be created on first checkout")
	}

	// Provider reports the session paid; the redirect path confirms it
	f.provider.MarkPaid(info.SessionID, "pi_test_1")
	tx, err = f.coordinator.VerifyCheckoutSuccess(ctx, info.SessionID)
	if err != nil {
		t.Fatalf("VerifyCheckoutSuccess: %v", err)
	}
	if tx.Status != marketplace.StatusCompleted || tx.Payment.Status != marketplace.PaymentCompleted {
		t.Fatalf("status = %s/%s, want completed/completed", tx.Status, tx.Payment.Status)
	}
	card, _ := f.store.GetCard(ctx, "card_1")
	if card.OwnerID != "usr_buyer" {
		t.Errorf("card owner = %s, want usr_buyer", card.OwnerID)
	}
}

func TestInitiateCheckout_OnlyBuyer(t *testing.T) {
	f := newFixture(t)
	tx := f.acceptedSale(t, "90", "90")

	_, _, err := f.coordinator.InitiateCheckout(context.Background(), tx.ID, "usr_seller")
	if !errors.Is(err, marketplace.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestInitiateCheckout_ProviderFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.acceptedSale(t, "90", "90")

	f.provider.SessionErr = fmt.Errorf("stripe is down")
	_, _, err := f.coordinator.InitiateCheckout(ctx, tx.ID, "usr_buyer")
	if !IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}

	fresh, _ := f.market.Get(ctx, tx.ID)
	if fresh.Payment.Status != marketplace.PaymentUnpaid {
		t.Errorf("payment status = %s, want unpaid after provider failure", fresh.Payment.Status)
	}
	if fresh.Payment.CheckoutSessionID != "" {
		t.Errorf("session id persisted despite provider failure")
	}
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.acceptedSale(t, "90", "90")

	info, _, err := f.coordinator.InitiateCheckout(ctx, tx.ID, "usr_buyer")
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}

	first, err := f.coordinator.ConfirmSession(ctx, info.SessionID, "pi_1")
	if err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	second, err := f.coordinator.ConfirmSession(ctx, info.SessionID, "pi_1")
	if err != nil {
		t.Fatalf("second ConfirmSession: %v", err)
	}
	if second.Version != first.Version {
		t.Errorf("idempotent confirm mutated state: version %d -> %d", first.Version, second.Version)
	}
}

func TestCancelPending_NeverOverwritesCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.acceptedSale(t, "90", "90")

	info, _, _ := f.coordinator.InitiateCheckout(ctx, tx.ID, "usr_buyer")
	if _, err := f.coordinator.ConfirmSession(ctx, info.SessionID, "pi_1"); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}

	got, err := f.coordinator.CancelPending(ctx, tx.ID, "usr_buyer")
	if err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if got.Payment.Status != marketplace.PaymentCompleted {
		t.Errorf("payment status = %s, cancel must not overwrite completed", got.Payment.Status)
	}
}

func TestFailIntent_KeepsTransactionAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := f.acceptedSale(t, "90", "90")

	_, _, _ = f.coordinator.InitiateCheckout(ctx, tx.ID, "usr_buyer")

	got, err := f.coordinator.FailIntent(ctx, "pi_unseen", tx.ID)
	if err != nil {
		t.Fatalf("FailIntent: %v", err)
	}
	if got.Payment.Status != marketplace.PaymentFailed {
		t.Errorf("payment status = %s, want failed", got.Payment.Status)
	}
	if got.Status != marketplace.StatusAccepted {
		t.Errorf("transaction status = %s, want accepted after payment failure", got.Status)
	}
}

func TestConnectOnboard_CreatesAccountOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.acceptedSale(t, "90", "90")

	first, err := f.coordinator.ConnectOnboard(ctx, "usr_seller")
	if err != nil {
		t.Fatalf("ConnectOnboard: %v", err)
	}
	second, err := f.coordinator.ConnectOnboard(ctx, "usr_seller")
	if err != nil {
		t.Fatalf("second ConnectOnboard: %v", err)
	}
	if first != second {
		t.Errorf("onboard created a second account: %s != %s", first, second)
	}
}

func TestUpdateConnectAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.acceptedSale(t, "90", "90")

	accountID, _ := f.coordinator.ConnectOnboard(ctx, "usr_seller")
	if err := f.coordinator.UpdateConnectAccount(ctx, accountID, true, true); err != nil {
		t.Fatalf("UpdateConnectAccount: %v", err)
	}
	seller, _ := f.store.GetUser(ctx, "usr_seller")
	if !seller.ConnectOnboarded || !seller.ConnectPayoutsEnabled {
		t.Errorf("connect flags not applied: %+v", seller)
	}
}
