// Package marketplace owns the gift-card ledger and the offer state machine.
//
// Flow (sale):
//  1. Buyer creates an offer against an active listing → pending
//  2. Seller counters (optional, one round) → countered, expiry reset
//  3. Seller accepts / buyer accepts counter → accepted, ownership unchanged
//  4. Payment coordinator confirms funds → card transferred, listing sold,
//     transaction completed
//
// Flow (trade): seller accept swaps both cards atomically and completes the
// transaction in one transition; no payment leg.
//
// Every transition re-reads the transaction under a per-ID lock and commits
// through Store.Apply, which version-checks every touched row. A lost race
// surfaces as ErrVersionConflict and the caller may retry against fresh state.
package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrCardNotFound        = errors.New("gift card not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidStatus       = errors.New("invalid status for this operation")
	ErrUnauthorized        = errors.New("not authorized for this operation")
	ErrVersionConflict     = errors.New("record was modified concurrently, retry")
	ErrSelfDeal            = errors.New("buyer and seller cannot be the same user")
	ErrCounterUnchanged    = errors.New("counteroffer must differ from the current offer amount")
	ErrListingTaken        = errors.New("gift card already has an active listing")
)

// DefaultOfferTTL is the time an offer or counteroffer stays open.
const DefaultOfferTTL = 48 * time.Hour

// TransactionType distinguishes cash sales from card-for-card trades.
type TransactionType string

const (
	TypeSale  TransactionType = "sale"
	TypeTrade TransactionType = "trade"
)

// Status represents the state of a transaction (offer).
type Status string

const (
	StatusPending   Status = "pending"   // Offer made, awaiting seller
	StatusCountered Status = "countered" // Seller countered, awaiting buyer
	StatusAccepted  Status = "accepted"  // Sale accepted, awaiting payment
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed" // Ownership transferred
)

// PaymentStatus tracks the settlement leg of a sale.
type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// CardStatus represents the state of a gift card.
type CardStatus string

const (
	CardActive  CardStatus = "active"
	CardListed  CardStatus = "listed"
	CardUsed    CardStatus = "used"
	CardExpired CardStatus = "expired"
)

// ListingStatus represents the state of a listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingTraded    ListingStatus = "traded"
	ListingCancelled ListingStatus = "cancelled"
)

// AcquiredBoughtOnPlatform marks cards whose ownership was transferred by a
// completed sale.
const AcquiredBoughtOnPlatform = "bought_on_cardly"

// AcquiredTraded marks cards whose ownership was transferred by a trade.
const AcquiredTraded = "traded"

// User holds the marketplace-side view of an account. Authentication lives
// upstream; this record carries the payment-provider linkage.
type User struct {
	ID                     string    `json:"id"`
	Email                  string    `json:"email"`
	DisplayName            string    `json:"displayName"`
	StripeCustomerID       string    `json:"-"`
	StripeConnectAccountID string    `json:"-"`
	ConnectOnboarded       bool      `json:"connectOnboarded"`
	ConnectPayoutsEnabled  bool      `json:"connectPayoutsEnabled"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// GiftCard is a prepaid card owned by a user. Balance never changes during
// negotiation; transitions only reassign ownership.
type GiftCard struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Brand         string          `json:"brand"`
	Balance       decimal.Decimal `json:"balance"`
	OriginalValue decimal.Decimal `json:"originalValue"`
	Status        CardStatus      `json:"status"`
	AcquiredFrom  string          `json:"acquiredFrom,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Listing offers a single gift card for sale or trade. At most one active
// listing exists per card.
type Listing struct {
	ID               string          `json:"id"`
	GiftCardID       string          `json:"giftCardId"`
	SellerID         string          `json:"sellerId"`
	Type             TransactionType `json:"type"`
	Status           ListingStatus   `json:"status"`
	AskingPrice      decimal.Decimal `json:"askingPrice"`
	TradePreferences string          `json:"tradePreferences,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// DiscountPercent derives the discount the asking price represents against
// the card's balance, rounded to two places. Zero when balance is zero.
func (l *Listing) DiscountPercent(balance decimal.Decimal) decimal.Decimal {
	if balance.IsZero() || l.Type != TypeSale {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(l.AskingPrice.Div(balance).Mul(hundred)).Round(2)
}

// PaymentInfo is the settlement sub-record of a sale transaction.
type PaymentInfo struct {
	Status            PaymentStatus `json:"status"`
	CheckoutSessionID string        `json:"checkoutSessionId,omitempty"`
	PaymentIntentID   string        `json:"paymentIntentId,omitempty"`
	AmountCents       int64         `json:"amountCents,omitempty"`
	FeeCents          int64         `json:"feeCents,omitempty"`
	PayoutCents       int64         `json:"payoutCents,omitempty"`
	PaidAt            *time.Time    `json:"paidAt,omitempty"`
	PayoutStatus      string        `json:"payoutStatus,omitempty"`
	PayoutAt          *time.Time    `json:"payoutAt,omitempty"`
	TransferID        string        `json:"transferId,omitempty"`
	RefundID          string        `json:"refundId,omitempty"`
}

// Transaction is an offer on a listing and the ground truth of the deal's
// lifecycle. Transactions are never deleted; cancellation and expiry are
// terminal statuses.
type Transaction struct {
	ID                string          `json:"id"`
	Type              TransactionType `json:"type"`
	Status            Status          `json:"status"`
	ListingID         string          `json:"listingId"`
	BuyerID           string          `json:"buyerId"`
	SellerID          string          `json:"sellerId"`
	Amount            decimal.Decimal `json:"amount"`
	Message           string          `json:"message,omitempty"`
	OfferedGiftCardID string          `json:"offeredGiftCardId,omitempty"`
	CounterAmount     decimal.Decimal `json:"counterAmount,omitempty"`
	CounterMessage    string          `json:"counterMessage,omitempty"`
	CounteredAt       *time.Time      `json:"counteredAt,omitempty"`
	OriginalAmount    decimal.Decimal `json:"originalAmount,omitempty"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	Payment           PaymentInfo     `json:"payment"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Open returns true while the offer still awaits a party's decision.
func (t *Transaction) Open() bool {
	return t.Status == StatusPending || t.Status == StatusCountered
}

// CurrentOfferAmount is the amount the deal would close at right now: the
// counter amount while countered, the offer amount otherwise.
func (t *Transaction) CurrentOfferAmount() decimal.Decimal {
	if t.Status == StatusCountered {
		return t.CounterAmount
	}
	return t.Amount
}

// Mutation is one atomic commit against the ledger. Every record it carries
// is version-checked; all of them land together or none do.
type Mutation struct {
	Transaction    *Transaction // update, optional
	Cards          []*GiftCard  // updates
	Listings       []*Listing   // updates
	NewTransaction *Transaction // insert
	NewListing     *Listing     // insert
}

// Store persists marketplace data.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByConnectAccount(ctx context.Context, accountID string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	CreateCard(ctx context.Context, card *GiftCard) error
	GetCard(ctx context.Context, id string) (*GiftCard, error)
	ListCardsByOwner(ctx context.Context, ownerID string, limit int) ([]*GiftCard, error)

	GetListing(ctx context.Context, id string) (*Listing, error)
	ActiveListingForCard(ctx context.Context, cardID string) (*Listing, error)

	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	GetTransactionBySession(ctx context.Context, sessionID string) (*Transaction, error)
	GetTransactionByIntent(ctx context.Context, intentID string) (*Transaction, error)
	ListTransactionsForUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error)

	// Apply commits the mutation atomically, incrementing the version of every
	// updated record. ErrVersionConflict if any version check fails.
	Apply(ctx context.Context, m Mutation) error
}

// CreateListingRequest contains the parameters for listing a card.
type CreateListingRequest struct {
	GiftCardID       string `json:"giftCardId" binding:"required"`
	Type             string `json:"type" binding:"required"`
	AskingPrice      string `json:"askingPrice"`
	TradePreferences string `json:"tradePreferences"`
}

// CreateOfferRequest contains the parameters for opening an offer.
type CreateOfferRequest struct {
	ListingID         string `json:"listingId" binding:"required"`
	Amount            string `json:"amount"` // Decimal string; defaults to asking price for sales
	Message           string `json:"message"`
	OfferedGiftCardID string `json:"offeredGiftCardId"` // Trades only
}

// CounterRequest contains the parameters for a seller counteroffer.
type CounterRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Message string `json:"message"`
}
