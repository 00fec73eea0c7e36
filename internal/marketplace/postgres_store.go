package marketplace

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// PostgresStore persists marketplace data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed marketplace store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying pool for stats collection.
func (p *PostgresStore) DB() *sql.DB {
	return p.db
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, display_name, stripe_customer_id, stripe_connect_account_id,
			connect_onboarded, connect_payouts_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.DisplayName,
		nullString(u.StripeCustomerID), nullString(u.StripeConnectAccountID),
		u.ConnectOnboarded, u.ConnectPayoutsEnabled, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

const userColumns = `id, email, display_name, stripe_customer_id, stripe_connect_account_id,
		       connect_onboarded, connect_payouts_enabled, created_at, updated_at`

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (p *PostgresStore) GetUserByConnectAccount(ctx context.Context, accountID string) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_connect_account_id = $1`, accountID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (p *PostgresStore) UpdateUser(ctx context.Context, u *User) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE users SET
			email = $1, display_name = $2, stripe_customer_id = $3,
			stripe_connect_account_id = $4, connect_onboarded = $5,
			connect_payouts_enabled = $6, updated_at = $7
		WHERE id = $8`,
		u.Email, u.DisplayName, nullString(u.StripeCustomerID),
		nullString(u.StripeConnectAccountID), u.ConnectOnboarded,
		u.ConnectPayoutsEnabled, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(result, ErrUserNotFound)
}

func (p *PostgresStore) CreateCard(ctx context.Context, card *GiftCard) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO gift_cards (
			id, owner_id, brand, balance, original_value, status,
			acquired_from, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4::NUMERIC(12,2), $5::NUMERIC(12,2), $6, $7, $8, $9, $10)`,
		card.ID, card.OwnerID, card.Brand, card.Balance, card.OriginalValue,
		string(card.Status), nullString(card.AcquiredFrom), card.Version,
		card.CreatedAt, card.UpdatedAt,
	)
	return err
}

const cardColumns = `id, owner_id, brand, balance, original_value, status,
		       acquired_from, version, created_at, updated_at`

func (p *PostgresStore) GetCard(ctx context.Context, id string) (*GiftCard, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM gift_cards WHERE id = $1`, id)
	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, ErrCardNotFound
	}
	return card, err
}

func (p *PostgresStore) ListCardsByOwner(ctx context.Context, ownerID string, limit int) ([]*GiftCard, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM gift_cards
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*GiftCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, card)
	}
	return result, rows.Err()
}

const listingColumns = `id, gift_card_id, seller_id, type, status, asking_price,
		       trade_preferences, version, created_at, updated_at`

func (p *PostgresStore) GetListing(ctx context.Context, id string) (*Listing, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	return l, err
}

func (p *PostgresStore) ActiveListingForCard(ctx context.Context, cardID string) (*Listing, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE gift_card_id = $1 AND status = 'active'`, cardID)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	return l, err
}

const txColumns = `id, type, status, listing_id, buyer_id, seller_id, amount, message,
		       offered_gift_card_id, counter_amount, counter_message, countered_at,
		       original_amount, expires_at,
		       payment_status, checkout_session_id, payment_intent_id,
		       amount_cents, fee_cents, payout_cents, paid_at,
		       payout_status, payout_at, transfer_id, refund_id,
		       version, created_at, updated_at`

func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func (p *PostgresStore) GetTransactionBySession(ctx context.Context, sessionID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE checkout_session_id = $1`, sessionID)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func (p *PostgresStore) GetTransactionByIntent(ctx context.Context, intentID string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE payment_intent_id = $1`, intentID)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	return tx, err
}

func (p *PostgresStore) ListTransactionsForUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func (p *PostgresStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE status IN ('pending', 'countered')
		  AND expires_at < $1
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// Apply commits the mutation in one SQL transaction. Each update carries a
// `version = version + 1 WHERE ... AND version = $n` clause; zero rows
// affected rolls the whole mutation back as a version conflict.
func (p *PostgresStore) Apply(ctx context.Context, mut Mutation) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if mut.Transaction != nil {
		if err := applyTransaction(ctx, sqlTx, mut.Transaction); err != nil {
			return err
		}
	}
	for _, card := range mut.Cards {
		if err := applyCard(ctx, sqlTx, card); err != nil {
			return err
		}
	}
	for _, l := range mut.Listings {
		if err := applyListing(ctx, sqlTx, l); err != nil {
			return err
		}
	}
	if mut.NewTransaction != nil {
		if err := insertTransaction(ctx, sqlTx, mut.NewTransaction); err != nil {
			return err
		}
	}
	if mut.NewListing != nil {
		if err := insertListing(ctx, sqlTx, mut.NewListing); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return err
	}

	// Committed: bump in-memory versions to match the database
	if mut.Transaction != nil {
		mut.Transaction.Version++
	}
	for _, card := range mut.Cards {
		card.Version++
	}
	for _, l := range mut.Listings {
		l.Version++
	}
	return nil
}

func applyTransaction(ctx context.Context, sqlTx *sql.Tx, t *Transaction) error {
	result, err := sqlTx.ExecContext(ctx, `
		UPDATE transactions SET
			status = $1, amount = $2::NUMERIC(12,2),
			counter_amount = $3, counter_message = $4, countered_at = $5,
			original_amount = $6, expires_at = $7,
			payment_status = $8, checkout_session_id = $9, payment_intent_id = $10,
			amount_cents = $11, fee_cents = $12, payout_cents = $13, paid_at = $14,
			payout_status = $15, payout_at = $16, transfer_id = $17, refund_id = $18,
			version = version + 1, updated_at = $19
		WHERE id = $20 AND version = $21`,
		string(t.Status), t.Amount,
		nullDecimal(t.CounterAmount), nullString(t.CounterMessage), nullTime(t.CounteredAt),
		nullDecimal(t.OriginalAmount), t.ExpiresAt,
		string(t.Payment.Status), nullString(t.Payment.CheckoutSessionID), nullString(t.Payment.PaymentIntentID),
		t.Payment.AmountCents, t.Payment.FeeCents, t.Payment.PayoutCents, nullTime(t.Payment.PaidAt),
		nullString(t.Payment.PayoutStatus), nullTime(t.Payment.PayoutAt),
		nullString(t.Payment.TransferID), nullString(t.Payment.RefundID),
		t.UpdatedAt, t.ID, t.Version,
	)
	if err != nil {
		return err
	}
	return checkVersioned(ctx, sqlTx, result, `transactions`, t.ID, ErrTransactionNotFound)
}

func applyCard(ctx context.Context, sqlTx *sql.Tx, card *GiftCard) error {
	result, err := sqlTx.ExecContext(ctx, `
		UPDATE gift_cards SET
			owner_id = $1, status = $2, acquired_from = $3,
			version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		card.OwnerID, string(card.Status), nullString(card.AcquiredFrom),
		card.UpdatedAt, card.ID, card.Version,
	)
	if err != nil {
		return err
	}
	return checkVersioned(ctx, sqlTx, result, `gift_cards`, card.ID, ErrCardNotFound)
}

func applyListing(ctx context.Context, sqlTx *sql.Tx, l *Listing) error {
	result, err := sqlTx.ExecContext(ctx, `
		UPDATE listings SET
			status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		string(l.Status), l.UpdatedAt, l.ID, l.Version,
	)
	if err != nil {
		return err
	}
	return checkVersioned(ctx, sqlTx, result, `listings`, l.ID, ErrListingNotFound)
}

func insertTransaction(ctx context.Context, sqlTx *sql.Tx, t *Transaction) error {
	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, type, status, listing_id, buyer_id, seller_id, amount, message,
			offered_gift_card_id, counter_amount, counter_message, countered_at,
			original_amount, expires_at,
			payment_status, checkout_session_id, payment_intent_id,
			amount_cents, fee_cents, payout_cents, paid_at,
			payout_status, payout_at, transfer_id, refund_id,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::NUMERIC(12,2), $8,
			$9, $10, $11, $12,
			$13, $14,
			$15, $16, $17,
			$18, $19, $20, $21,
			$22, $23, $24, $25,
			$26, $27, $28
		)`,
		t.ID, string(t.Type), string(t.Status), t.ListingID, t.BuyerID, t.SellerID,
		t.Amount, nullString(t.Message),
		nullString(t.OfferedGiftCardID), nullDecimal(t.CounterAmount),
		nullString(t.CounterMessage), nullTime(t.CounteredAt),
		nullDecimal(t.OriginalAmount), t.ExpiresAt,
		string(t.Payment.Status), nullString(t.Payment.CheckoutSessionID),
		nullString(t.Payment.PaymentIntentID),
		t.Payment.AmountCents, t.Payment.FeeCents, t.Payment.PayoutCents,
		nullTime(t.Payment.PaidAt),
		nullString(t.Payment.PayoutStatus), nullTime(t.Payment.PayoutAt),
		nullString(t.Payment.TransferID), nullString(t.Payment.RefundID),
		t.Version, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func insertListing(ctx context.Context, sqlTx *sql.Tx, l *Listing) error {
	_, err := sqlTx.ExecContext(ctx, `
		INSERT INTO listings (
			id, gift_card_id, seller_id, type, status, asking_price,
			trade_preferences, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.GiftCardID, l.SellerID, string(l.Type), string(l.Status),
		nullDecimal(l.AskingPrice), nullString(l.TradePreferences),
		l.Version, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

// checkVersioned distinguishes a missing row from a lost version race.
func checkVersioned(ctx context.Context, sqlTx *sql.Tx, result sql.Result, table, id string, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := sqlTx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound
	}
	return ErrVersionConflict
}

func checkAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*User, error) {
	u := &User{}
	var customerID, connectID sql.NullString
	err := s.Scan(
		&u.ID, &u.Email, &u.DisplayName, &customerID, &connectID,
		&u.ConnectOnboarded, &u.ConnectPayoutsEnabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.StripeCustomerID = customerID.String
	u.StripeConnectAccountID = connectID.String
	return u, nil
}

func scanCard(s scanner) (*GiftCard, error) {
	card := &GiftCard{}
	var status string
	var acquiredFrom sql.NullString
	err := s.Scan(
		&card.ID, &card.OwnerID, &card.Brand, &card.Balance, &card.OriginalValue,
		&status, &acquiredFrom, &card.Version, &card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	card.Status = CardStatus(status)
	card.AcquiredFrom = acquiredFrom.String
	return card, nil
}

func scanListing(s scanner) (*Listing, error) {
	l := &Listing{}
	var ltype, status string
	var askingPrice decimal.NullDecimal
	var prefs sql.NullString
	err := s.Scan(
		&l.ID, &l.GiftCardID, &l.SellerID, &ltype, &status, &askingPrice,
		&prefs, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Type = TransactionType(ltype)
	l.Status = ListingStatus(status)
	l.AskingPrice = askingPrice.Decimal
	l.TradePreferences = prefs.String
	return l, nil
}

func scanTransaction(s scanner) (*Transaction, error) {
	t := &Transaction{}
	var (
		ttype, status, paymentStatus       string
		message, offeredCardID, counterMsg sql.NullString
		counterAmount, originalAmount      decimal.NullDecimal
		counteredAt, paidAt, payoutAt      sql.NullTime
		sessionID, intentID                sql.NullString
		payoutStatus, transferID, refundID sql.NullString
	)
	err := s.Scan(
		&t.ID, &ttype, &status, &t.ListingID, &t.BuyerID, &t.SellerID, &t.Amount, &message,
		&offeredCardID, &counterAmount, &counterMsg, &counteredAt,
		&originalAmount, &t.ExpiresAt,
		&paymentStatus, &sessionID, &intentID,
		&t.Payment.AmountCents, &t.Payment.FeeCents, &t.Payment.PayoutCents, &paidAt,
		&payoutStatus, &payoutAt, &transferID, &refundID,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Type = TransactionType(ttype)
	t.Status = Status(status)
	t.Message = message.String
	t.OfferedGiftCardID = offeredCardID.String
	t.CounterAmount = counterAmount.Decimal
	t.CounterMessage = counterMsg.String
	t.OriginalAmount = originalAmount.Decimal
	t.Payment.Status = PaymentStatus(paymentStatus)
	t.Payment.CheckoutSessionID = sessionID.String
	t.Payment.PaymentIntentID = intentID.String
	t.Payment.PayoutStatus = payoutStatus.String
	t.Payment.TransferID = transferID.String
	t.Payment.RefundID = refundID.String
	if counteredAt.Valid {
		t.CounteredAt = &counteredAt.Time
	}
	if paidAt.Valid {
		t.Payment.PaidAt = &paidAt.Time
	}
	if payoutAt.Valid {
		t.Payment.PayoutAt = &payoutAt.Time
	}
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullDecimal stores a zero decimal as NULL.
func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
