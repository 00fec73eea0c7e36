package ratings

import (
	"context"
	"database/sql"
)

// PostgresStore persists ratings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed rating store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ratingColumns = `id, transaction_id, rater_id, ratee_id, score, role, comment, created_at`

func (p *PostgresStore) Create(ctx context.Context, r *Rating) error {
	// The unique index on (transaction_id, rater_id) enforces one rating
	// per rater per transaction.
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO ratings (id, transaction_id, rater_id, ratee_id, score, role, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id, rater_id) DO NOTHING`,
		r.ID, r.TransactionID, r.RaterID, r.RateeID, r.Score, string(r.Role),
		nullString(r.Comment), r.CreatedAt,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyRated
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Rating, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE id = $1`, id)
	r, err := scanRating(row)
	if err == sql.ErrNoRows {
		return nil, ErrRatingNotFound
	}
	return r, err
}

func (p *PostgresStore) ListByTransaction(ctx context.Context, txID string) ([]*Rating, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+ratingColumns+`
		FROM ratings
		WHERE transaction_id = $1
		ORDER BY created_at ASC`, txID)
	if err != nil {
		return nil, err
	}
	return collectRatings(rows)
}

func (p *PostgresStore) ListForUser(ctx context.Context, rateeID string, limit int) ([]*Rating, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+ratingColumns+`
		FROM ratings
		WHERE ratee_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, rateeID, limit)
	if err != nil {
		return nil, err
	}
	return collectRatings(rows)
}

func (p *PostgresStore) SummaryForUser(ctx context.Context, rateeID string) (*Summary, error) {
	summary := &Summary{UserID: rateeID}
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(score), 0)
		FROM ratings
		WHERE ratee_id = $1`, rateeID).Scan(&summary.Count, &summary.Average)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func collectRatings(rows *sql.Rows) ([]*Rating, error) {
	defer func() { _ = rows.Close() }()
	var result []*Rating
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRating(s scanner) (*Rating, error) {
	r := &Rating{}
	var role string
	var comment sql.NullString
	err := s.Scan(&r.ID, &r.TransactionID, &r.RaterID, &r.RateeID, &r.Score,
		&role, &comment, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Role = Role(role)
	r.Comment = comment.String
	return r, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
