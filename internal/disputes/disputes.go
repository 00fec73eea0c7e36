// Package disputes implements post-completion dispute resolution.
//
// A participant opens a dispute against a completed or accepted transaction.
// Staff review and resolve it; a buyer-favor ruling on a paid sale reverses
// the settlement through the marketplace, the only path that undoes a
// completed transaction's ownership.
package disputes

import (
	"context"
	"errors"
	"time"

	"github.com/MonsoudZ/Cardly/internal/marketplace"
)

var (
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrInvalidStatus      = errors.New("invalid dispute status for this operation")
	ErrUnauthorized       = errors.New("not authorized for this dispute operation")
	ErrAlreadyDisputed    = errors.New("transaction already has an unresolved dispute")
	ErrInvalidReason      = errors.New("invalid dispute reason")
	ErrBadResolution      = errors.New("invalid resolution value")
	ErrBadDescription     = errors.New("description must be between 20 and 2000 characters")
	ErrDisputeNotOpenable = errors.New("disputes can only be opened against completed or accepted transactions")
)

// Status represents the state of a dispute.
type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"
)

// Reason categorizes why the dispute was opened.
type Reason string

const (
	ReasonCardNotWorking     Reason = "card_not_working"
	ReasonWrongBalance       Reason = "wrong_balance"
	ReasonCardAlreadyUsed    Reason = "card_already_used"
	ReasonCardNotReceived    Reason = "card_not_received"
	ReasonFraudulentListing  Reason = "fraudulent_listing"
	ReasonSellerUnresponsive Reason = "seller_unresponsive"
	ReasonOther              Reason = "other"
)

func validReason(r Reason) bool {
	switch r {
	case ReasonCardNotWorking, ReasonWrongBalance, ReasonCardAlreadyUsed,
		ReasonCardNotReceived, ReasonFraudulentListing, ReasonSellerUnresponsive,
		ReasonOther:
		return true
	}
	return false
}

// Resolution is the ruling applied when a dispute is resolved.
type Resolution string

const (
	ResolutionBuyerFavor      Resolution = "buyer_favor"
	ResolutionSellerFavor     Resolution = "seller_favor"
	ResolutionMutualAgreement Resolution = "mutual_agreement"
	ResolutionNoAction        Resolution = "no_action"
)

func validResolution(r Resolution) bool {
	switch r {
	case ResolutionBuyerFavor, ResolutionSellerFavor, ResolutionMutualAgreement, ResolutionNoAction:
		return true
	}
	return false
}

// Dispute is a complaint against a transaction.
type Dispute struct {
	ID              string     `json:"id"`
	TransactionID   string     `json:"transactionId"`
	InitiatorID     string     `json:"initiatorId"`
	Reason          Reason     `json:"reason"`
	Description     string     `json:"description"`
	Status          Status     `json:"status"`
	Resolution      Resolution `json:"resolution,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty"`
	AdminNotes      string     `json:"adminNotes,omitempty"`
	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Unresolved reports whether the dispute still blocks new disputes on the
// same transaction.
func (d *Dispute) Unresolved() bool {
	return d.Status == StatusOpen || d.Status == StatusUnderReview
}

// Message is one entry in a dispute's thread.
type Message struct {
	ID        string     `json:"id"`
	DisputeID string     `json:"disputeId"`
	SenderID  string     `json:"senderId"`
	Content   string     `json:"content"`
	FromStaff bool       `json:"fromStaff"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Store persists disputes and their message threads.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
	ListByTransaction(ctx context.Context, txID string) ([]*Dispute, error)
	UnresolvedForTransaction(ctx context.Context, txID string) (*Dispute, error)

	AddMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, disputeID string) ([]*Message, error)
	MarkMessagesRead(ctx context.Context, disputeID, readerID string) error
	UnreadCount(ctx context.Context, disputeID, readerID string) (int, error)
}

// TransactionSource looks up the transaction a dispute targets.
// Satisfied by the marketplace service.
type TransactionSource interface {
	Get(ctx context.Context, id string) (*marketplace.Transaction, error)
}

// SettlementReverser undoes a paid sale: payment refunded, card back to the
// seller. Satisfied by the marketplace service.
type SettlementReverser interface {
	ReverseSale(ctx context.Context, id string) (*marketplace.Transaction, error)
}

// OpenRequest contains the parameters for opening a dispute.
type OpenRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	Reason        string `json:"reason" binding:"required"`
	Description   string `json:"description" binding:"required"`
}

// ResolveRequest contains the parameters for resolving a dispute.
type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Notes      string `json:"notes"`
}

// MessageRequest contains the parameters for posting to a dispute thread.
type MessageRequest struct {
	Content string `json:"content" binding:"required"`
}
