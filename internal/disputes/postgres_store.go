package disputes

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists disputes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disputes (
			id, transaction_id, initiator_id, reason, description, status,
			resolution, resolution_notes, admin_notes,
			reviewed_by, reviewed_at, resolved_by, resolved_at, closed_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16
		)`,
		d.ID, d.TransactionID, d.InitiatorID, string(d.Reason), d.Description, string(d.Status),
		nullString(string(d.Resolution)), nullString(d.ResolutionNotes), nullString(d.AdminNotes),
		nullString(d.ReviewedBy), nullTime(d.ReviewedAt),
		nullString(d.ResolvedBy), nullTime(d.ResolvedAt), nullTime(d.ClosedAt),
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

const disputeColumns = `id, transaction_id, initiator_id, reason, description, status,
		       resolution, resolution_notes, admin_notes,
		       reviewed_by, reviewed_at, resolved_by, resolved_at, closed_at,
		       created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE disputes SET
			status = $1, resolution = $2, resolution_notes = $3, admin_notes = $4,
			reviewed_by = $5, reviewed_at = $6, resolved_by = $7, resolved_at = $8,
			closed_at = $9, updated_at = $10
		WHERE id = $11`,
		string(d.Status), nullString(string(d.Resolution)), nullString(d.ResolutionNotes),
		nullString(d.AdminNotes), nullString(d.ReviewedBy), nullTime(d.ReviewedAt),
		nullString(d.ResolvedBy), nullTime(d.ResolvedAt), nullTime(d.ClosedAt),
		d.UpdatedAt, d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

func (p *PostgresStore) ListByTransaction(ctx context.Context, txID string) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE transaction_id = $1
		ORDER BY created_at ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UnresolvedForTransaction(ctx context.Context, txID string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE transaction_id = $1 AND status IN ('open', 'under_review')
		LIMIT 1`, txID)
	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) AddMessage(ctx context.Context, msg *Message) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, sender_id, content, from_staff, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.DisputeID, msg.SenderID, msg.Content, msg.FromStaff,
		nullTime(msg.ReadAt), msg.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListMessages(ctx context.Context, disputeID string) ([]*Message, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, dispute_id, sender_id, content, from_staff, read_at, created_at
		FROM dispute_messages
		WHERE dispute_id = $1
		ORDER BY created_at ASC`, disputeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Message
	for rows.Next() {
		msg := &Message{}
		var readAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.DisputeID, &msg.SenderID, &msg.Content,
			&msg.FromStaff, &readAt, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (p *PostgresStore) MarkMessagesRead(ctx context.Context, disputeID, readerID string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE dispute_messages SET read_at = NOW()
		WHERE dispute_id = $1 AND sender_id <> $2 AND read_at IS NULL`,
		disputeID, readerID)
	return err
}

func (p *PostgresStore) UnreadCount(ctx context.Context, disputeID, readerID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dispute_messages
		WHERE dispute_id = $1 AND sender_id <> $2 AND read_at IS NULL`,
		disputeID, readerID).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDispute(s scanner) (*Dispute, error) {
	d := &Dispute{}
	var (
		reason, status                   string
		resolution, notes, adminNotes    sql.NullString
		reviewedBy, resolvedBy           sql.NullString
		reviewedAt, resolvedAt, closedAt sql.NullTime
	)
	err := s.Scan(
		&d.ID, &d.TransactionID, &d.InitiatorID, &reason, &d.Description, &status,
		&resolution, &notes, &adminNotes,
		&reviewedBy, &reviewedAt, &resolvedBy, &resolvedAt, &closedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Reason = Reason(reason)
	d.Status = Status(status)
	d.Resolution = Resolution(resolution.String)
	d.ResolutionNotes = notes.String
	d.AdminNotes = adminNotes.String
	d.ReviewedBy = reviewedBy.String
	d.ResolvedBy = resolvedBy.String
	if reviewedAt.Valid {
		d.ReviewedAt = &reviewedAt.Time
	}
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	if closedAt.Valid {
		d.ClosedAt = &closedAt.Time
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
