package webhookin

import (
	"context"
	"database/sql"
)

// PostgresStore persists the event ledger in PostgreSQL. The unique index on
// event_id makes Insert a no-op for replayed deliveries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed event ledger.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, rec *EventRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, processed, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.Type, rec.Processed, []byte(rec.Payload), rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, eventID string) (*EventRecord, error) {
	rec := &EventRecord{}
	var errMsg sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, processed, payload, error_message, created_at, updated_at
		FROM webhook_events WHERE event_id = $1`, eventID).Scan(
		&rec.EventID, &rec.Type, &rec.Processed, (*[]byte)(&rec.Payload), &errMsg,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.ErrorMessage = errMsg.String
	return rec, nil
}

func (p *PostgresStore) MarkProcessed(ctx context.Context, eventID, errorMessage string) error {
	var errVal sql.NullString
	if errorMessage != "" {
		errVal = sql.NullString{String: errorMessage, Valid: true}
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed = TRUE, error_message = $1, updated_at = NOW()
		WHERE event_id = $2`, errVal, eventID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (p *PostgresStore) ListFailed(ctx context.Context, limit int) ([]*EventRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT event_id, event_type, processed, payload, error_message, created_at, updated_at
		FROM webhook_events
		WHERE processed = TRUE AND error_message IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*EventRecord
	for rows.Next() {
		rec := &EventRecord{}
		var errMsg sql.NullString
		if err := rows.Scan(
			&rec.EventID, &rec.Type, &rec.Processed, (*[]byte)(&rec.Payload), &errMsg,
			&rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.ErrorMessage = errMsg.String
		result = append(result, rec)
	}
	return result, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
