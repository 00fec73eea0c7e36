package disputes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MonsoudZ/Cardly/internal/idgen"
	"github.com/MonsoudZ/Cardly/internal/marketplace"
	"github.com/MonsoudZ/Cardly/internal/metrics"
	"github.com/MonsoudZ/Cardly/internal/notify"
	"github.com/MonsoudZ/Cardly/internal/traces"
)

// Service implements the dispute lifecycle.
type Service struct {
	store    Store
	txSource TransactionSource
	reverser SettlementReverser
	sink     notify.Sink
	logger   *slog.Logger
	locks    sync.Map // per-dispute ID locks
}

// NewService creates a new dispute service.
func NewService(store Store, txSource TransactionSource, reverser SettlementReverser, sink notify.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = notify.Discard{}
	}
	return &Service{
		store:    store,
		txSource: txSource,
		reverser: reverser,
		sink:     sink,
		logger:   logger,
	}
}

func (s *Service) disputeLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// emitBoth sends one intent per transaction participant.
func (s *Service) emitBoth(ctx context.Context, kind notify.Kind, d *Dispute, tx *marketplace.Transaction, data map[string]string) {
	for _, recipient := range []string{tx.BuyerID, tx.SellerID} {
		s.sink.Emit(ctx, notify.Intent{
			Kind:          kind,
			RecipientID:   recipient,
			TransactionID: tx.ID,
			DisputeID:     d.ID,
			Data:          data,
			CreatedAt:     time.Now(),
		})
	}
}

// Open files a dispute against a completed or accepted transaction. Only a
// participant may open one, and only while no other unresolved dispute
// exists for the transaction.
func (s *Service) Open(ctx context.Context, initiatorID string, req OpenRequest) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "disputes.Open",
		traces.TransactionID(req.TransactionID), traces.UserID(initiatorID))
	defer span.End()

	reason := Reason(req.Reason)
	if !validReason(reason) {
		return nil, ErrInvalidReason
	}
	if n := utf8.RuneCountInString(req.Description); n < 20 || n > 2000 {
		return nil, ErrBadDescription
	}

	tx, err := s.txSource.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != marketplace.StatusCompleted && tx.Status != marketplace.StatusAccepted {
		return nil, ErrDisputeNotOpenable
	}
	if initiatorID != tx.BuyerID && initiatorID != tx.SellerID {
		return nil, ErrUnauthorized
	}
	if _, err := s.store.UnresolvedForTransaction(ctx, tx.ID); err == nil {
		return nil, ErrAlreadyDisputed
	} else if err != ErrDisputeNotFound {
		return nil, err
	}

	now := time.Now()
	d := &Dispute{
		ID:            idgen.WithPrefix("dsp_"),
		TransactionID: tx.ID,
		InitiatorID:   initiatorID,
		Reason:        reason,
		Description:   req.Description,
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	s.emitBoth(ctx, notify.KindDisputeOpened, d, tx, map[string]string{
		"reason": string(reason),
	})
	s.logger.Info("dispute opened",
		"disputeId", d.ID,
		"transactionId", tx.ID,
		"reason", reason,
	)
	return d, nil
}

// MarkUnderReview moves an open dispute into staff review.
func (s *Service) MarkUnderReview(ctx context.Context, id, staffID string) (*Dispute, error) {
	mu := s.disputeLock(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusOpen {
		return nil, ErrInvalidStatus
	}

	now := time.Now()
	d.Status = StatusUnderReview
	d.ReviewedBy = staffID
	d.ReviewedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	s.notifyStatusChange(ctx, d)
	return d, nil
}

// Resolve applies a ruling. A buyer-favor ruling on a paid sale also
// reverses the settlement; the dispute update and the reversal must both
// land, so a failed reversal rolls the dispute record back and the dispute
// stays unresolved.
func (s *Service) Resolve(ctx context.Context, id, staffID string, req ResolveRequest) (*Dispute, error) {
	mu := s.disputeLock(id)
	mu.Lock()
	defer mu.Unlock()

	resolution := Resolution(req.Resolution)
	if !validResolution(resolution) {
		return nil, ErrBadResolution
	}

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusOpen && d.Status != StatusUnderReview {
		return nil, ErrInvalidStatus
	}

	tx, err := s.txSource.Get(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "disputes.Resolve",
		traces.DisputeID(d.ID), traces.TransactionID(tx.ID))
	defer span.End()

	prev := *d
	now := time.Now()
	d.Status = StatusResolved
	d.Resolution = resolution
	d.ResolutionNotes = req.Notes
	d.ResolvedBy = staffID
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	if resolution == ResolutionBuyerFavor && tx.Type == marketplace.TypeSale &&
		tx.Payment.Status == marketplace.PaymentCompleted {
		if _, err := s.reverser.ReverseSale(ctx, tx.ID); err != nil {
			// The ruling cannot stand without the refund; put the record back
			if revertErr := s.store.Update(ctx, &prev); revertErr != nil {
				s.logger.Error("CRITICAL: dispute marked resolved but settlement reversal and revert both failed; requires manual resolution",
					"disputeId", d.ID,
					"transactionId", tx.ID,
					"reverseError", err,
					"revertError", revertErr,
				)
			}
			return nil, fmt.Errorf("settlement reversal failed: %w", err)
		}
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(resolution)).Inc()
	s.emitBoth(ctx, notify.KindDisputeResolved, d, tx, map[string]string{
		"resolution": string(resolution),
	})
	s.logger.Info("dispute resolved",
		"disputeId", d.ID,
		"resolution", resolution,
		"resolvedBy", staffID,
	)
	return d, nil
}

// Close archives a resolved dispute.
func (s *Service) Close(ctx context.Context, id, staffID, adminNotes string) (*Dispute, error) {
	mu := s.disputeLock(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusResolved {
		return nil, ErrInvalidStatus
	}

	now := time.Now()
	d.Status = StatusClosed
	if adminNotes != "" {
		d.AdminNotes = adminNotes
	}
	d.ClosedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	s.notifyStatusChange(ctx, d)
	return d, nil
}

// Reopen reverses a close, clearing the previous resolution.
func (s *Service) Reopen(ctx context.Context, id, staffID string) (*Dispute, error) {
	mu := s.disputeLock(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusClosed {
		return nil, ErrInvalidStatus
	}

	d.Status = StatusOpen
	d.Resolution = ""
	d.ResolutionNotes = ""
	d.ResolvedBy = ""
	d.ResolvedAt = nil
	d.ClosedAt = nil
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	s.notifyStatusChange(ctx, d)
	s.logger.Info("dispute reopened", "disputeId", d.ID, "by", staffID)
	return d, nil
}

func (s *Service) notifyStatusChange(ctx context.Context, d *Dispute) {
	tx, err := s.txSource.Get(ctx, d.TransactionID)
	if err != nil {
		return
	}
	s.emitBoth(ctx, notify.KindDisputeStatusChanged, d, tx, map[string]string{
		"status": string(d.Status),
	})
}

// AddMessage posts to the dispute thread. Participants and staff only; the
// thread is read-only once the dispute is closed.
func (s *Service) AddMessage(ctx context.Context, disputeID, senderID string, fromStaff bool, req MessageRequest) (*Message, error) {
	if n := utf8.RuneCountInString(req.Content); n == 0 || n > 2000 {
		return nil, fmt.Errorf("%w: content must be 1 to 2000 characters", ErrBadDescription)
	}

	d, err := s.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusClosed {
		return nil, ErrInvalidStatus
	}

	tx, err := s.txSource.Get(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}
	if !fromStaff && senderID != tx.BuyerID && senderID != tx.SellerID {
		return nil, ErrUnauthorized
	}

	msg := &Message{
		ID:        idgen.WithPrefix("dmsg_"),
		DisputeID: d.ID,
		SenderID:  senderID,
		Content:   req.Content,
		FromStaff: fromStaff,
		CreatedAt: time.Now(),
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	for _, recipient := range []string{tx.BuyerID, tx.SellerID} {
		if recipient == senderID {
			continue
		}
		s.sink.Emit(ctx, notify.Intent{
			Kind:          notify.KindDisputeNewMessage,
			RecipientID:   recipient,
			TransactionID: tx.ID,
			DisputeID:     d.ID,
			CreatedAt:     time.Now(),
		})
	}
	return msg, nil
}

// Messages returns the dispute thread, marking it read for the caller.
func (s *Service) Messages(ctx context.Context, disputeID, readerID string) ([]*Message, error) {
	if _, err := s.store.Get(ctx, disputeID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkMessagesRead(ctx, disputeID, readerID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadCount returns how many thread messages the reader has not seen.
func (s *Service) UnreadCount(ctx context.Context, disputeID, readerID string) (int, error) {
	return s.store.UnreadCount(ctx, disputeID, readerID)
}

// Get returns a dispute by ID.
func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// ListByTransaction returns all disputes ever filed against a transaction.
func (s *Service) ListByTransaction(ctx context.Context, txID string) ([]*Dispute, error) {
	return s.store.ListByTransaction(ctx, txID)
}
