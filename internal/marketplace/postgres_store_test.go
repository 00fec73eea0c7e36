package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MonsoudZ/Cardly/internal/testutil"
)

// Integration tests against a real PostgreSQL instance.
// Skipped unless POSTGRES_URL is set.

func TestPostgresStore_UserRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	u := &User{
		ID:          "usr_pg1",
		Email:       "pg1@example.com",
		DisplayName: "PG One",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.GetUser(ctx, "usr_pg1")
	require.NoError(t, err)
	require.Equal(t, "pg1@example.com", got.Email)
	require.False(t, got.ConnectOnboarded)

	got.StripeConnectAccountID = "acct_pg1"
	got.ConnectOnboarded = true
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateUser(ctx, got))

	byAcct, err := store.GetUserByConnectAccount(ctx, "acct_pg1")
	require.NoError(t, err)
	require.Equal(t, "usr_pg1", byAcct.ID)

	_, err = store.GetUser(ctx, "usr_missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresStore_ApplyIsAtomicAndVersioned(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seller := &User{ID: "usr_pgs", Email: "pgs@example.com", CreatedAt: now, UpdatedAt: now}
	buyer := &User{ID: "usr_pgb", Email: "pgb@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateUser(ctx, seller))
	require.NoError(t, store.CreateUser(ctx, buyer))

	card := &GiftCard{
		ID:            "card_pg1",
		OwnerID:       seller.ID,
		Brand:         "Amazon",
		Balance:       decimal.NewFromInt(50),
		OriginalValue: decimal.NewFromInt(50),
		Status:        CardActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.CreateCard(ctx, card))

	listing := &Listing{
		ID:          "lst_pg1",
		GiftCardID:  card.ID,
		SellerID:    seller.ID,
		Type:        TypeSale,
		Status:      ListingActive,
		AskingPrice: decimal.NewFromInt(45),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.Apply(ctx, Mutation{NewListing: listing}))

	tx := &Transaction{
		ID:        "txn_pg1",
		Type:      TypeSale,
		Status:    StatusPending,
		ListingID: listing.ID,
		BuyerID:   buyer.ID,
		SellerID:  seller.ID,
		Amount:    decimal.NewFromInt(45),
		ExpiresAt: now.Add(48 * time.Hour),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Apply(ctx, Mutation{NewTransaction: tx}))

	// Accept the offer: transaction, card, and listing move together.
	tx.Status = StatusAccepted
	tx.UpdatedAt = time.Now().UTC()
	listing.Status = ListingSold
	listing.UpdatedAt = tx.UpdatedAt
	card.Status = CardListed
	card.UpdatedAt = tx.UpdatedAt
	require.NoError(t, store.Apply(ctx, Mutation{
		Transaction: tx,
		Cards:       []*GiftCard{card},
		Listings:    []*Listing{listing},
	}))
	require.Equal(t, int64(2), tx.Version)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, got.Status)
	require.Equal(t, int64(2), got.Version)

	// A writer holding the old version loses.
	stale := *got
	stale.Version = 1
	stale.Status = StatusCancelled
	err = store.Apply(ctx, Mutation{Transaction: &stale})
	require.ErrorIs(t, err, ErrVersionConflict)

	// The conflict rolled everything back.
	got, err = store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, got.Status)
}

func TestPostgresStore_TransactionLookupsByProviderID(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seller := &User{ID: "usr_pls", Email: "pls@example.com", CreatedAt: now, UpdatedAt: now}
	buyer := &User{ID: "usr_plb", Email: "plb@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateUser(ctx, seller))
	require.NoError(t, store.CreateUser(ctx, buyer))

	card := &GiftCard{
		ID: "card_pl1", OwnerID: seller.ID, Brand: "Target",
		Balance: decimal.NewFromInt(30), OriginalValue: decimal.NewFromInt(30),
		Status: CardActive, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateCard(ctx, card))

	listing := &Listing{
		ID: "lst_pl1", GiftCardID: card.ID, SellerID: seller.ID,
		Type: TypeSale, Status: ListingActive,
		AskingPrice: decimal.NewFromInt(27), Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Apply(ctx, Mutation{NewListing: listing}))

	tx := &Transaction{
		ID: "txn_pl1", Type: TypeSale, Status: StatusAccepted,
		ListingID: listing.ID, BuyerID: buyer.ID, SellerID: seller.ID,
		Amount: decimal.NewFromInt(27), ExpiresAt: now.Add(48 * time.Hour),
		Payment: PaymentInfo{
			Status:            PaymentPending,
			CheckoutSessionID: "cs_pl1",
			PaymentIntentID:   "pi_pl1",
			AmountCents:       2700,
			FeeCents:          135,
			PayoutCents:       2565,
		},
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Apply(ctx, Mutation{NewTransaction: tx}))

	bySession, err := store.GetTransactionBySession(ctx, "cs_pl1")
	require.NoError(t, err)
	require.Equal(t, "txn_pl1", bySession.ID)
	require.Equal(t, int64(2565), bySession.Payment.PayoutCents)

	byIntent, err := store.GetTransactionByIntent(ctx, "pi_pl1")
	require.NoError(t, err)
	require.Equal(t, "txn_pl1", byIntent.ID)

	_, err = store.GetTransactionBySession(ctx, "cs_unknown")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}
