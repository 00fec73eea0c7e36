package ratings

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/MonsoudZ/Cardly/internal/idgen"
	"github.com/MonsoudZ/Cardly/internal/marketplace"
)

// TransactionSource looks up the transaction being rated.
// Satisfied by the marketplace service.
type TransactionSource interface {
	Get(ctx context.Context, id string) (*marketplace.Transaction, error)
}

// Service implements rating submission and aggregation.
type Service struct {
	store    Store
	txSource TransactionSource
	logger   *slog.Logger
}

// NewService creates a new rating service.
func NewService(store Store, txSource TransactionSource, logger *slog.Logger) *Service {
	return &Service{store: store, txSource: txSource, logger: logger}
}

// Create submits a rating. The transaction must be completed, the rater must
// be a participant, and each participant rates at most once.
func (s *Service) Create(ctx context.Context, raterID string, req CreateRequest) (*Rating, error) {
	if req.Score < 1 || req.Score > 5 {
		return nil, ErrBadScore
	}
	if utf8.RuneCountInString(req.Comment) > 1000 {
		return nil, ErrCommentTooLong
	}

	tx, err := s.txSource.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != marketplace.StatusCompleted {
		return nil, ErrNotCompleted
	}

	var role Role
	var rateeID string
	switch raterID {
	case tx.BuyerID:
		role, rateeID = RoleBuyer, tx.SellerID
	case tx.SellerID:
		role, rateeID = RoleSeller, tx.BuyerID
	default:
		return nil, ErrUnauthorized
	}

	r := &Rating{
		ID:            idgen.WithPrefix("rtg_"),
		TransactionID: tx.ID,
		RaterID:       raterID,
		RateeID:       rateeID,
		Score:         req.Score,
		Role:          role,
		Comment:       req.Comment,
		CreatedAt:     time.Now(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("rating submitted",
		"ratingId", r.ID,
		"transactionId", tx.ID,
		"score", r.Score,
	)
	return r, nil
}

// Get returns a rating by ID.
func (s *Service) Get(ctx context.Context, id string) (*Rating, error) {
	return s.store.Get(ctx, id)
}

// ListByTransaction returns the ratings filed against a transaction.
func (s *Service) ListByTransaction(ctx context.Context, txID string) ([]*Rating, error) {
	return s.store.ListByTransaction(ctx, txID)
}

// ListForUser returns ratings received by a user, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Rating, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListForUser(ctx, userID, limit)
}

// SummaryForUser returns the count and average of a user's received ratings.
func (s *Service) SummaryForUser(ctx context.Context, userID string) (*Summary, error) {
	return s.store.SummaryForUser(ctx, userID)
}
