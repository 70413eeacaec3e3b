package postgres

import (
	"context"
	"database/sql"
	"time"

	"travel/internal/domain"
	"travel/internal/repository"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sql.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, booking_id, tx_ref, amount, currency, status, payment_method, checkout_url, created_at, updated_at, verified_at`

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var verifiedAt sql.NullTime
	if payment.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *payment.VerifiedAt, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.TxRef,
		payment.Amount,
		payment.Currency,
		payment.Status,
		nullString(payment.PaymentMethod),
		payment.CheckoutURL,
		payment.CreatedAt,
		payment.UpdatedAt,
		verifiedAt,
	)

	return mapError(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.q.QueryRowContext(ctx, query, id))
}

// GetByTxRef retrieves a payment by its transaction reference.
func (r *PaymentRepository) GetByTxRef(ctx context.Context, txRef string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_ref = $1`
	return scanPayment(r.q.QueryRowContext(ctx, query, txRef))
}

// GetByTxRefForUpdate retrieves a payment by transaction reference and locks its row.
func (r *PaymentRepository) GetByTxRefForUpdate(ctx context.Context, txRef string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_ref = $1 FOR UPDATE`
	return scanPayment(r.q.QueryRowContext(ctx, query, txRef))
}

// HasCompleted reports whether any payment of the booking is completed.
func (r *PaymentRepository) HasCompleted(ctx context.Context, bookingID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = $1 AND status = $2)`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, bookingID, domain.PaymentStatusCompleted).Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}

// MarkCompleted moves a pending payment to completed.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, id, method string, verifiedAt time.Time) error {
	query := `
		UPDATE payments
		SET status = $1, payment_method = $2, verified_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := r.q.ExecContext(ctx, query,
		domain.PaymentStatusCompleted,
		nullString(method),
		verifiedAt,
		id,
		domain.PaymentStatusPending,
	)
	if err != nil {
		return mapError(err)
	}

	return expectOneRow(result)
}

// MarkFailed moves a pending payment to failed.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := r.q.ExecContext(ctx, query,
		domain.PaymentStatusFailed,
		at,
		id,
		domain.PaymentStatusPending,
	)
	if err != nil {
		return mapError(err)
	}

	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrConflict
	}

	return nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var payment domain.Payment
	var method sql.NullString
	var verifiedAt sql.NullTime

	err := row.Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.TxRef,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&method,
		&payment.CheckoutURL,
		&payment.CreatedAt,
		&payment.UpdatedAt,
		&verifiedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	if method.Valid {
		payment.PaymentMethod = method.String
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		payment.VerifiedAt = &t
	}

	return &payment, nil
}

var _ repository.PaymentRepository = (*PaymentRepository)(nil)
