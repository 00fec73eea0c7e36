package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MonsoudZ/Cardly/internal/idgen"
	"github.com/MonsoudZ/Cardly/internal/metrics"
	"github.com/MonsoudZ/Cardly/internal/notify"
	"github.com/MonsoudZ/Cardly/internal/traces"
)

// Service implements the offer state machine and listing lifecycle.
type Service struct {
	store    Store
	sink     notify.Sink
	logger   *slog.Logger
	offerTTL time.Duration
	locks    sync.Map // per-transaction ID locks to serialize transitions
}

// NewService creates a new marketplace service.
func NewService(store Store, sink notify.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = notify.Discard{}
	}
	return &Service{
		store:    store,
		sink:     sink,
		logger:   logger,
		offerTTL: DefaultOfferTTL,
	}
}

// WithOfferTTL overrides the offer expiry window.
func (s *Service) WithOfferTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.offerTTL = ttl
	}
	return s
}

// txLock returns a mutex for the given transaction ID.
// Serializes concurrent transitions (e.g. buyer cancel racing seller accept)
// in-process; the version check in Store.Apply covers multi-process races.
func (s *Service) txLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Service) emit(ctx context.Context, kind notify.Kind, tx *Transaction, recipientID string, data map[string]string) {
	s.sink.Emit(ctx, notify.Intent{
		Kind:          kind,
		RecipientID:   recipientID,
		TransactionID: tx.ID,
		Data:          data,
		CreatedAt:     time.Now(),
	})
}

// CreateListing lists a card for sale or trade. The card moves to `listed`
// and must not already carry an active listing.
func (s *Service) CreateListing(ctx context.Context, sellerID string, req CreateListingRequest) (*Listing, error) {
	ctx, span := traces.StartSpan(ctx, "marketplace.CreateListing", traces.UserID(sellerID))
	defer span.End()

	ltype := TransactionType(req.Type)
	if ltype != TypeSale && ltype != TypeTrade {
		return nil, fmt.Errorf("%w: listing type must be sale or trade", ErrInvalidStatus)
	}

	card, err := s.store.GetCard(ctx, req.GiftCardID)
	if err != nil {
		return nil, err
	}
	if card.OwnerID != sellerID {
		return nil, ErrUnauthorized
	}
	if card.Status != CardActive {
		return nil, fmt.Errorf("%w: card is %s", ErrInvalidStatus, card.Status)
	}
	if !card.Balance.IsPositive() {
		return nil, fmt.Errorf("%w: card has no balance", ErrInvalidStatus)
	}
	if _, err := s.store.ActiveListingForCard(ctx, card.ID); err == nil {
		return nil, ErrListingTaken
	} else if err != ErrListingNotFound {
		return nil, err
	}

	now := time.Now()
	listing := &Listing{
		ID:         idgen.WithPrefix("lst_"),
		GiftCardID: card.ID,
		SellerID:   sellerID,
		Type:       ltype,
		Status:     ListingActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch ltype {
	case TypeSale:
		price, err := decimal.NewFromString(req.AskingPrice)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("%w: asking price must be a positive amount", ErrInvalidStatus)
		}
		if price.GreaterThan(card.Balance) {
			return nil, fmt.Errorf("%w: asking price cannot exceed card balance", ErrInvalidStatus)
		}
		listing.AskingPrice = price
	case TypeTrade:
		listing.TradePreferences = req.TradePreferences
	}

	card.Status = CardListed
	card.UpdatedAt = now

	if err := s.store.Apply(ctx, Mutation{NewListing: listing, Cards: []*GiftCard{card}}); err != nil {
		return nil, err
	}
	return listing, nil
}

// CancelListing withdraws an active listing and returns the card to `active`.
func (s *Service) CancelListing(ctx context.Context, id, callerID string) (*Listing, error) {
	listing, err := s.store.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != callerID {
		return nil, ErrUnauthorized
	}
	if listing.Status != ListingActive {
		return nil, ErrInvalidStatus
	}

	card, err := s.store.GetCard(ctx, listing.GiftCardID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	listing.Status = ListingCancelled
	listing.UpdatedAt = now
	card.Status = CardActive
	card.UpdatedAt = now

	if err := s.store.Apply(ctx, Mutation{Listings: []*Listing{listing}, Cards: []*GiftCard{card}}); err != nil {
		return nil, err
	}
	return listing, nil
}

// CreateOffer opens an offer (transaction) against an active listing.
// Sale offers default to the asking price and carry a 48-hour expiry; trade
// offers must name a card owned by the buyer with positive balance.
func (s *Service) CreateOffer(ctx context.Context, buyerID string, req CreateOfferRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "marketplace.CreateOffer",
		traces.UserID(buyerID), traces.ListingID(req.ListingID))
	defer span.End()

	listing, err := s.store.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != ListingActive {
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidStatus, listing.Status)
	}
	if listing.SellerID == buyerID {
		return nil, ErrSelfDeal
	}

	now := time.Now()
	tx := &Transaction{
		ID:        idgen.WithPrefix("txn_"),
		Type:      listing.Type,
		Status:    StatusPending,
		ListingID: listing.ID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		Message:   req.Message,
		ExpiresAt: now.Add(s.offerTTL),
		Payment:   PaymentInfo{Status: PaymentUnpaid},
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch listing.Type {
	case TypeSale:
		if req.OfferedGiftCardID != "" {
			return nil, fmt.Errorf("%w: sale offers cannot include a card", ErrInvalidStatus)
		}
		amount := listing.AskingPrice
		if req.Amount != "" {
			amount, err = decimal.NewFromString(req.Amount)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid offer amount", ErrInvalidStatus)
			}
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: offer amount must be positive", ErrInvalidStatus)
		}
		tx.Amount = amount
	case TypeTrade:
		if req.OfferedGiftCardID == "" {
			return nil, fmt.Errorf("%w: trade offers must include a card", ErrInvalidStatus)
		}
		offered, err := s.store.GetCard(ctx, req.OfferedGiftCardID)
		if err != nil {
			return nil, err
		}
		if offered.OwnerID != buyerID {
			return nil, fmt.Errorf("%w: offered card is not yours", ErrUnauthorized)
		}
		if !offered.Balance.IsPositive() {
			return nil, fmt.Errorf("%w: offered card has no balance", ErrInvalidStatus)
		}
		tx.OfferedGiftCardID = offered.ID
	}

	if err := s.store.Apply(ctx, Mutation{NewTransaction: tx}); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(StatusPending)).Inc()
	s.emit(ctx, notify.KindNewOffer, tx, tx.SellerID, map[string]string{
		"amount": tx.Amount.String(),
	})
	return tx, nil
}

// Counter records a seller counteroffer on a pending sale. The new amount
// must strictly differ from the current offer and resets the expiry window.
// One round only: a countered offer cannot be countered again.
func (s *Service) Counter(ctx context.Context, id, callerID string, req CounterRequest) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.SellerID != callerID {
		return nil, ErrUnauthorized
	}
	if tx.Type != TypeSale {
		return nil, fmt.Errorf("%w: trades cannot be countered", ErrInvalidStatus)
	}
	if tx.Status != StatusPending {
		return nil, ErrInvalidStatus
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: counter amount must be a positive amount", ErrInvalidStatus)
	}
	if amount.Equal(tx.CurrentOfferAmount()) {
		return nil, ErrCounterUnchanged
	}

	now := time.Now()
	if tx.OriginalAmount.IsZero() {
		tx.OriginalAmount = tx.Amount
	}
	tx.Status = StatusCountered
	tx.CounterAmount = amount
	tx.CounterMessage = req.Message
	tx.CounteredAt = &now
	tx.ExpiresAt = now.Add(s.offerTTL)
	tx.UpdatedAt = now

	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(StatusCountered)).Inc()
	s.emit(ctx, notify.KindCounterOffer, tx, tx.BuyerID, map[string]string{
		"counterAmount": amount.String(),
	})
	return tx, nil
}

// Accept accepts a pending offer. Trades swap ownership of both cards and
// complete immediately; sales move to `accepted` and await the payment
// coordinator. Ownership of a sold card never moves on accept alone.
func (s *Service) Accept(ctx context.Context, id, callerID string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.SellerID != callerID {
		return nil, ErrUnauthorized
	}
	if tx.Status != StatusPending {
		return nil, ErrInvalidStatus
	}

	return s.acceptLocked(ctx, tx, notify.KindOfferAccepted)
}

// AcceptCounter lets the buyer take the seller's counteroffer. The offer
// amount becomes the counter amount, then the accept path runs as usual.
func (s *Service) AcceptCounter(ctx context.Context, id, callerID string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.BuyerID != callerID {
		return nil, ErrUnauthorized
	}
	if tx.Status != StatusCountered {
		return nil, ErrInvalidStatus
	}

	tx.Amount = tx.CounterAmount
	return s.acceptLocked(ctx, tx, notify.KindCounterAccepted)
}

// acceptLocked applies the accept transition. Caller holds the tx lock and
// has already checked authorization and source status.
func (s *Service) acceptLocked(ctx context.Context, tx *Transaction, kind notify.Kind) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "marketplace.Accept", traces.TransactionID(tx.ID))
	defer span.End()

	now := time.Now()
	tx.UpdatedAt = now

	if tx.Type == TypeTrade {
		return s.completeTradeLocked(ctx, tx, kind, now)
	}

	tx.Status = StatusAccepted
	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(StatusAccepted)).Inc()
	recipient := tx.BuyerID
	if kind == notify.KindCounterAccepted {
		recipient = tx.SellerID
	}
	s.emit(ctx, kind, tx, recipient, map[string]string{
		"amount": tx.Amount.String(),
	})
	return tx, nil
}

// completeTradeLocked swaps both cards, retires the listing, and cancels the
// offered card's own listing if it has one. All rows commit together.
func (s *Service) completeTradeLocked(ctx context.Context, tx *Transaction, kind notify.Kind, now time.Time) (*Transaction, error) {
	listing, err := s.store.GetListing(ctx, tx.ListingID)
	if err != nil {
		return nil, err
	}
	listed, err := s.store.GetCard(ctx, listing.GiftCardID)
	if err != nil {
		return nil, err
	}
	offered, err := s.store.GetCard(ctx, tx.OfferedGiftCardID)
	if err != nil {
		return nil, err
	}
	if offered.OwnerID != tx.BuyerID {
		return nil, fmt.Errorf("%w: offered card no longer belongs to the buyer", ErrInvalidStatus)
	}
	if !offered.Balance.IsPositive() {
		return nil, fmt.Errorf("%w: offered card no longer has a balance", ErrInvalidStatus)
	}

	listed.OwnerID = tx.BuyerID
	listed.Status = CardActive
	listed.AcquiredFrom = AcquiredTraded
	listed.UpdatedAt = now

	offered.OwnerID = tx.SellerID
	offered.Status = CardActive
	offered.AcquiredFrom = AcquiredTraded
	offered.UpdatedAt = now

	listing.Status = ListingTraded
	listing.UpdatedAt = now

	listings := []*Listing{listing}
	if own, err := s.store.ActiveListingForCard(ctx, offered.ID); err == nil {
		own.Status = ListingCancelled
		own.UpdatedAt = now
		listings = append(listings, own)
	} else if err != ErrListingNotFound {
		return nil, err
	}

	tx.Status = StatusCompleted
	m := Mutation{
		Transaction: tx,
		Cards:       []*GiftCard{listed, offered},
		Listings:    listings,
	}
	if err := s.store.Apply(ctx, m); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(StatusCompleted)).Inc()
	recipient := tx.BuyerID
	if kind == notify.KindCounterAccepted {
		recipient = tx.SellerID
	}
	s.emit(ctx, kind, tx, recipient, nil)
	return tx, nil
}

// Reject declines a pending offer.
func (s *Service) Reject(ctx context.Context, id, callerID string) (*Transaction, error) {
	return s.decline(ctx, id, func(tx *Transaction) (notify.Kind, string, error) {
		if tx.SellerID != callerID {
			return "", "", ErrUnauthorized
		}
		if tx.Status != StatusPending {
			return "", "", ErrInvalidStatus
		}
		tx.Status = StatusRejected
		return notify.KindOfferRejected, tx.BuyerID, nil
	})
}

// RejectCounter lets the buyer decline the seller's counteroffer.
func (s *Service) RejectCounter(ctx context.Context, id, callerID string) (*Transaction, error) {
	return s.decline(ctx, id, func(tx *Transaction) (notify.Kind, string, error) {
		if tx.BuyerID != callerID {
			return "", "", ErrUnauthorized
		}
		if tx.Status != StatusCountered {
			return "", "", ErrInvalidStatus
		}
		tx.Status = StatusRejected
		return notify.KindCounterRejected, tx.SellerID, nil
	})
}

// Cancel withdraws an open offer. Buyer only.
func (s *Service) Cancel(ctx context.Context, id, callerID string) (*Transaction, error) {
	return s.decline(ctx, id, func(tx *Transaction) (notify.Kind, string, error) {
		if tx.BuyerID != callerID {
			return "", "", ErrUnauthorized
		}
		if !tx.Open() {
			return "", "", ErrInvalidStatus
		}
		tx.Status = StatusCancelled
		return notify.KindOfferCancelled, tx.SellerID, nil
	})
}

// decline applies a terminal no-side-effect transition under the tx lock.
func (s *Service) decline(ctx context.Context, id string, fn func(*Transaction) (notify.Kind, string, error)) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	kind, recipient, err := fn(tx)
	if err != nil {
		return nil, err
	}

	tx.UpdatedAt = time.Now()
	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(tx.Status)).Inc()
	s.emit(ctx, kind, tx, recipient, nil)
	return tx, nil
}

// Expire forces an overdue open offer to `expired`. Called by the sweeper;
// no-ops with ErrInvalidStatus if the offer already moved on.
func (s *Service) Expire(ctx context.Context, id string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.Open() {
		return nil, ErrInvalidStatus
	}
	if tx.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidStatus
	}

	tx.Status = StatusExpired
	tx.UpdatedAt = time.Now()
	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(StatusExpired)).Inc()
	metrics.OffersExpiredTotal.Inc()
	s.emit(ctx, notify.KindOfferExpired, tx, tx.BuyerID, nil)
	return tx, nil
}

// RecordCheckout persists an opened checkout session against an accepted
// sale and moves the payment leg to `pending`. Payment coordinator only.
func (s *Service) RecordCheckout(ctx context.Context, id, sessionID string, amountCents, feeCents, payoutCents int64) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Type != TypeSale || tx.Status != StatusAccepted {
		return nil, ErrInvalidStatus
	}
	if tx.Payment.Status == PaymentCompleted {
		return nil, ErrInvalidStatus
	}

	tx.Payment.Status = PaymentPending
	tx.Payment.CheckoutSessionID = sessionID
	tx.Payment.AmountCents = amountCents
	tx.Payment.FeeCents = feeCents
	tx.Payment.PayoutCents = payoutCents
	tx.UpdatedAt = time.Now()

	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

// CompletePayment finalizes a paid sale: the card moves to the buyer, the
// listing closes as sold, and the transaction completes. Ownership transfer
// is gated strictly on this transition; accept alone never moves a card.
func (s *Service) CompletePayment(ctx context.Context, id, paymentIntentID string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Payment.Status == PaymentCompleted {
		return tx, nil // Already settled; confirmation is idempotent
	}
	if tx.Type != TypeSale || tx.Status != StatusAccepted {
		return nil, ErrInvalidStatus
	}

	ctx, span := traces.StartSpan(ctx, "marketplace.CompletePayment",
		traces.TransactionID(tx.ID), traces.AmountCents(tx.Payment.AmountCents))
	defer span.End()

	listing, err := s.store.GetListing(ctx, tx.ListingID)
	if err != nil {
		return nil, err
	}
	card, err := s.store.GetCard(ctx, listing.GiftCardID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	card.OwnerID = tx.BuyerID
	card.Status = CardActive
	card.AcquiredFrom = AcquiredBoughtOnPlatform
	card.UpdatedAt = now

	listing.Status = ListingSold
	listing.UpdatedAt = now

	tx.Status = StatusCompleted
	tx.Payment.Status = PaymentCompleted
	tx.Payment.PaymentIntentID = paymentIntentID
	tx.Payment.PaidAt = &now
	tx.UpdatedAt = now

	m := Mutation{
		Transaction: tx,
		Cards:       []*GiftCard{card},
		Listings:    []*Listing{listing},
	}
	if err := s.store.Apply(ctx, m); err != nil {
		return nil, err
	}

	metrics.OffersTotal.WithLabelValues(string(StatusCompleted)).Inc()
	metrics.PaymentsTotal.WithLabelValues(string(PaymentCompleted)).Inc()
	s.logger.Info("payment completed",
		"transactionId", tx.ID,
		"amountCents", tx.Payment.AmountCents,
		"buyer", tx.BuyerID,
	)
	return tx, nil
}

// CancelPendingPayment lets the buyer abandon checkout. Only a `pending`
// payment is cancelled; any other payment status is left untouched and the
// call succeeds as a no-op, so it cannot race a just-confirmed payment.
func (s *Service) CancelPendingPayment(ctx context.Context, id, callerID string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.BuyerID != callerID {
		return nil, ErrUnauthorized
	}
	if tx.Payment.Status != PaymentPending {
		return tx, nil
	}

	tx.Payment.Status = PaymentCancelled
	tx.UpdatedAt = time.Now()
	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}
	metrics.PaymentsTotal.WithLabelValues(string(PaymentCancelled)).Inc()
	return tx, nil
}

// MarkPaymentFailed records a failed payment attempt. The transaction stays
// `accepted`; the buyer may re-initiate checkout or the offer expires.
func (s *Service) MarkPaymentFailed(ctx context.Context, id, paymentIntentID string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Payment.Status == PaymentCompleted {
		return tx, nil
	}

	tx.Payment.Status = PaymentFailed
	if paymentIntentID != "" {
		tx.Payment.PaymentIntentID = paymentIntentID
	}
	tx.UpdatedAt = time.Now()
	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(string(PaymentFailed)).Inc()
	s.emit(ctx, notify.KindPaymentFailed, tx, tx.BuyerID, nil)
	return tx, nil
}

// CompleteTransfer marks the seller payout as settled.
func (s *Service) CompleteTransfer(ctx context.Context, id, transferID string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx.Payment.PayoutStatus = "completed"
	tx.Payment.TransferID = transferID
	tx.Payment.PayoutAt = &now
	tx.UpdatedAt = now
	if err := s.store.Apply(ctx, Mutation{Transaction: tx}); err != nil {
		return nil, err
	}
	return tx, nil
}

// ReverseSale unwinds a completed sale after a dispute is ruled in the
// buyer's favor: the payment is marked refunded and the card returns to the
// seller as `active`. This is the only path that reverses a completed
// transaction's ownership.
func (s *Service) ReverseSale(ctx context.Context, id string) (*Transaction, error) {
	mu := s.txLock(id)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Type != TypeSale || tx.Payment.Status != PaymentCompleted {
		return nil, ErrInvalidStatus
	}

	listing, err := s.store.GetListing(ctx, tx.ListingID)
	if err != nil {
		return nil, err
	}
	card, err := s.store.GetCard(ctx, listing.GiftCardID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	card.OwnerID = tx.SellerID
	card.Status = CardActive
	card.UpdatedAt = now

	tx.Payment.Status = PaymentRefunded
	tx.UpdatedAt = now

	m := Mutation{
		Transaction: tx,
		Cards:       []*GiftCard{card},
	}
	if err := s.store.Apply(ctx, m); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(string(PaymentRefunded)).Inc()
	s.logger.Info("sale reversed",
		"transactionId", tx.ID,
		"cardId", card.ID,
		"returnedTo", tx.SellerID,
	)
	return tx, nil
}

// Get returns a transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// GetListing returns a listing by ID.
func (s *Service) GetListing(ctx context.Context, id string) (*Listing, error) {
	return s.store.GetListing(ctx, id)
}

// ListForUser returns transactions where the user is buyer or seller.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListTransactionsForUser(ctx, userID, limit)
}
