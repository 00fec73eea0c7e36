package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
	"github.com/MonsoudZ/Cardly/internal/metrics"
	"github.com/MonsoudZ/Cardly/internal/traces"
)

// DefaultFeeRate is the platform cut applied to every sale.
var DefaultFeeRate = decimal.RequireFromString("0.05")

// Coordinator bridges accepted sales to fund movement through the provider.
// It never mutates transaction state on a provider failure; the settlement
// leg only advances on a persisted session or a confirmed event.
type Coordinator struct {
	market     *marketplace.Service
	store      marketplace.Store
	provider   Provider
	feeRate    decimal.Decimal
	logger     *slog.Logger
	successURL string
	cancelURL  string
}

// NewCoordinator creates a payment settlement coordinator. The fee rate is
// injected at construction; it must be in [0, 1).
func NewCoordinator(market *marketplace.Service, store marketplace.Store, provider Provider, feeRate decimal.Decimal, logger *slog.Logger) *Coordinator {
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		feeRate = DefaultFeeRate
	}
	return &Coordinator{
		market:   market,
		store:    store,
		provider: provider,
		feeRate:  feeRate,
		logger:   logger,
	}
}

// WithRedirectURLs sets the post-checkout redirect targets.
func (c *Coordinator) WithRedirectURLs(success, cancel string) *Coordinator {
	c.successURL = success
	c.cancelURL = cancel
	return c
}

// ComputeAmounts converts a decimal major-unit amount into the settlement
// split in integer cents. The payout is the gross minus the fee, never
// independently rounded, so the three always sum exactly.
func (c *Coordinator) ComputeAmounts(amount decimal.Decimal) (amountCents, feeCents, payoutCents int64) {
	amountCents = amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	feeCents = decimal.NewFromInt(amountCents).Mul(c.feeRate).Round(0).IntPart()
	payoutCents = amountCents - feeCents
	return amountCents, feeCents, payoutCents
}

// InitiateCheckout opens a checkout session for an accepted sale. Valid only
// for the buyer while the payment is not yet completed. A provider failure
// aborts with no state change.
func (c *Coordinator) InitiateCheckout(ctx context.Context, txID, callerID string) (*CheckoutInfo, *marketplace.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "payments.InitiateCheckout",
		traces.TransactionID(txID), traces.UserID(callerID))
	defer span.End()

	tx, err := c.market.Get(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	if tx.BuyerID != callerID {
		return nil, nil, marketplace.ErrUnauthorized
	}
	if tx.Type != marketplace.TypeSale || tx.Status != marketplace.StatusAccepted {
		return nil, nil, fmt.Errorf("%w: checkout requires an accepted sale", marketplace.ErrInvalidStatus)
	}
	if tx.Payment.Status == marketplace.PaymentCompleted {
		return nil, nil, fmt.Errorf("%w: payment already completed", marketplace.ErrInvalidStatus)
	}

	customerID, err := c.ensureCustomer(ctx, tx.BuyerID)
	if err != nil {
		return nil, nil, err
	}

	amountCents, feeCents, payoutCents := c.ComputeAmounts(tx.CurrentOfferAmount())

	info, err := c.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		CustomerID:    customerID,
		AmountCents:   amountCents,
		Description:   "Cardly gift card purchase",
		TransactionID: tx.ID,
		SuccessURL:    c.successURL,
		CancelURL:     c.cancelURL,
	})
	if err != nil {
		return nil, nil, err
	}

	tx, err = c.market.RecordCheckout(ctx, tx.ID, info.SessionID, amountCents, feeCents, payoutCents)
	if err != nil {
		return nil, nil, err
	}

	metrics.CheckoutsInitiatedTotal.Inc()
	c.logger.Info("checkout initiated",
		"transactionId", tx.ID,
		"sessionId", info.SessionID,
		"amountCents", amountCents,
		"feeCents", feeCents,
	)
	return info, tx, nil
}

// ensureCustomer returns the buyer's provider customer ID, creating one on
// first checkout.
func (c *Coordinator) ensureCustomer(ctx context.Context, userID string) (string, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := c.provider.CreateCustomer(ctx, user.Email)
	if err != nil {
		return "", err
	}

	user.StripeCustomerID = customerID
	user.UpdatedAt = time.Now()
	if err := c.store.UpdateUser(ctx, user); err != nil {
		return "", err
	}
	return customerID, nil
}

// VerifyCheckoutSuccess is the success-redirect path: the buyer lands back
// with a session ID, we retrieve the session from the provider and confirm
// only when it reports paid. Not trusted alone; the webhook delivers the
// same confirmation independently and both paths are idempotent.
func (c *Coordinator) VerifyCheckoutSuccess(ctx context.Context, sessionID string) (*marketplace.Transaction, error) {
	info, err := c.provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if info.PaymentStatus != "paid" {
		return nil, fmt.Errorf("%w: session not paid", marketplace.ErrInvalidStatus)
	}
	return c.ConfirmSession(ctx, sessionID, info.PaymentIntentID)
}

// ConfirmSession finalizes the sale identified by a checkout session.
// Idempotent: an already-completed payment is a successful no-op.
func (c *Coordinator) ConfirmSession(ctx context.Context, sessionID, paymentIntentID string) (*marketplace.Transaction, error) {
	tx, err := c.store.GetTransactionBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return c.market.CompletePayment(ctx, tx.ID, paymentIntentID)
}

// ConfirmIntent finalizes the sale identified by a payment intent, falling
// back to the transaction ID from the intent's metadata.
func (c *Coordinator) ConfirmIntent(ctx context.Context, paymentIntentID, metadataTxID string) (*marketplace.Transaction, error) {
	tx, err := c.store.GetTransactionByIntent(ctx, paymentIntentID)
	if err != nil {
		if metadataTxID == "" {
			return nil, err
		}
		tx, err = c.market.Get(ctx, metadataTxID)
		if err != nil {
			return nil, err
		}
	}
	return c.market.CompletePayment(ctx, tx.ID, paymentIntentID)
}

// FailIntent records a failed payment attempt. The transaction itself stays
// accepted so the buyer can retry checkout.
func (c *Coordinator) FailIntent(ctx context.Context, paymentIntentID, metadataTxID string) (*marketplace.Transaction, error) {
	tx, err := c.store.GetTransactionByIntent(ctx, paymentIntentID)
	if err != nil {
		if metadataTxID == "" {
			return nil, err
		}
		tx, err = c.market.Get(ctx, metadataTxID)
		if err != nil {
			return nil, err
		}
	}
	return c.market.MarkPaymentFailed(ctx, tx.ID, paymentIntentID)
}

// CancelPending lets the buyer abandon a pending checkout. A no-op against
// any other payment status.
func (c *Coordinator) CancelPending(ctx context.Context, txID, callerID string) (*marketplace.Transaction, error) {
	return c.market.CancelPendingPayment(ctx, txID, callerID)
}

// ConnectOnboard creates a connected payout account for a seller, once.
func (c *Coordinator) ConnectOnboard(ctx context.Context, userID string) (string, error) {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeConnectAccountID != "" {
		return user.StripeConnectAccountID, nil
	}

	accountID, err := c.provider.CreateConnectedAccount(ctx, user.Email)
	if err != nil {
		return "", err
	}

	user.StripeConnectAccountID = accountID
	user.UpdatedAt = time.Now()
	if err := c.store.UpdateUser(ctx, user); err != nil {
		return "", err
	}
	return accountID, nil
}

// UpdateConnectAccount applies account.updated webhook state to the seller.
func (c *Coordinator) UpdateConnectAccount(ctx context.Context, accountID string, onboarded, payoutsEnabled bool) error {
	user, err := c.store.GetUserByConnectAccount(ctx, accountID)
	if err != nil {
		return err
	}
	user.ConnectOnboarded = onboarded
	user.ConnectPayoutsEnabled = payoutsEnabled
	user.UpdatedAt = time.Now()
	return c.store.UpdateUser(ctx, user)
}

// CompleteTransfer marks a seller payout as settled.
func (c *Coordinator) CompleteTransfer(ctx context.Context, txID, transferID string) (*marketplace.Transaction, error) {
	return c.market.CompleteTransfer(ctx, txID, transferID)
}
