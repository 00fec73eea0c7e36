// Package ratings lets transaction participants rate each other after a
// completed deal. One rating per rater per transaction.
package ratings

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRatingNotFound = errors.New("rating not found")
	ErrAlreadyRated   = errors.New("transaction already rated by this user")
	ErrBadScore       = errors.New("score must be between 1 and 5")
	ErrUnauthorized   = errors.New("only transaction participants can rate")
	ErrNotCompleted   = errors.New("only completed transactions can be rated")
	ErrCommentTooLong = errors.New("comment must be at most 1000 characters")
)

// Role records which side of the deal the rater was on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Rating is one participant's score of the other for a single transaction.
type Rating struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	RaterID       string    `json:"raterId"`
	RateeID       string    `json:"rateeId"`
	Score         int       `json:"score"`
	Role          Role      `json:"role"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Summary aggregates a user's received ratings.
type Summary struct {
	UserID  string  `json:"userId"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// Store persists ratings.
type Store interface {
	// Create inserts a rating. Returns ErrAlreadyRated when the rater has
	// already rated this transaction.
	Create(ctx context.Context, r *Rating) error
	Get(ctx context.Context, id string) (*Rating, error)
	ListByTransaction(ctx context.Context, txID string) ([]*Rating, error)
	ListForUser(ctx context.Context, rateeID string, limit int) ([]*Rating, error)
	SummaryForUser(ctx context.Context, rateeID string) (*Summary, error)
}

// CreateRequest contains the parameters for submitting a rating.
type CreateRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	Score         int    `json:"score" binding:"required"`
	Comment       string `json:"comment"`
}
