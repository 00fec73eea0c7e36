package ratings

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
	"github.com/MonsoudZ/Cardly/internal/testutil"
)

// Integration test against a real PostgreSQL instance.
// Skipped unless POSTGRES_URL is set.

func TestPostgresStore_UniquePerRater(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	// The ratings table references users and transactions, so seed a
	// completed sale through the marketplace store first.
	market := marketplace.NewPostgresStore(db)
	seller := &marketplace.User{ID: "usr_rps", Email: "rps@example.com", CreatedAt: now, UpdatedAt: now}
	buyer := &marketplace.User{ID: "usr_rpb", Email: "rpb@example.com", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, market.CreateUser(ctx, seller))
	require.NoError(t, market.CreateUser(ctx, buyer))

	card := &marketplace.GiftCard{
		ID: "card_rp1", OwnerID: buyer.ID, Brand: "Sephora",
		Balance: decimal.NewFromInt(25), OriginalValue: decimal.NewFromInt(25),
		Status: marketplace.CardActive, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, market.CreateCard(ctx, card))

	listing := &marketplace.Listing{
		ID: "lst_rp1", GiftCardID: card.ID, SellerID: seller.ID,
		Type: marketplace.TypeSale, Status: marketplace.ListingSold,
		AskingPrice: decimal.NewFromInt(22), Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, market.Apply(ctx, marketplace.Mutation{NewListing: listing}))

	tx := &marketplace.Transaction{
		ID: "txn_rp1", Type: marketplace.TypeSale, Status: marketplace.StatusCompleted,
		ListingID: listing.ID, BuyerID: buyer.ID, SellerID: seller.ID,
		Amount: decimal.NewFromInt(22), ExpiresAt: now.Add(48 * time.Hour),
		Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, market.Apply(ctx, marketplace.Mutation{NewTransaction: tx}))

	store := NewPostgresStore(db)

	first := &Rating{
		ID: "rtg_rp1", TransactionID: tx.ID, RaterID: buyer.ID, RateeID: seller.ID,
		Score: 5, Role: RoleBuyer, Comment: "smooth sale", CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, first))

	// Same rater, same transaction: the unique index rejects it.
	dup := &Rating{
		ID: "rtg_rp2", TransactionID: tx.ID, RaterID: buyer.ID, RateeID: seller.ID,
		Score: 1, Role: RoleBuyer, CreatedAt: now,
	}
	require.ErrorIs(t, store.Create(ctx, dup), ErrAlreadyRated)

	// The other side still gets its own slot.
	second := &Rating{
		ID: "rtg_rp3", TransactionID: tx.ID, RaterID: seller.ID, RateeID: buyer.ID,
		Score: 4, Role: RoleSeller, CreatedAt: now.Add(time.Second),
	}
	require.NoError(t, store.Create(ctx, second))

	summary, err := store.SummaryForUser(ctx, seller.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
	require.InDelta(t, 5.0, summary.Average, 0.001)

	byTx, err := store.ListByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, byTx, 2)
}
