package repository

import (
	"context"
	"time"

	"travel/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByTxRef retrieves a payment by its transaction reference.
	GetByTxRef(ctx context.Context, txRef string) (*domain.Payment, error)

	// GetByTxRefForUpdate retrieves a payment by transaction reference and
	// locks its row until the surrounding transaction ends.
	GetByTxRefForUpdate(ctx context.Context, txRef string) (*domain.Payment, error)

	// HasCompleted reports whether any payment of the booking is completed.
	HasCompleted(ctx context.Context, bookingID string) (bool, error)

	// MarkCompleted moves a pending payment to completed.
	// Returns ErrConflict if the payment is no longer pending and
	// ErrDuplicate if the booking already has a completed payment.
	MarkCompleted(ctx context.Context, id, method string, verifiedAt time.Time) error

	// MarkFailed moves a pending payment to failed.
	// Returns ErrConflict if the payment is no longer pending.
	MarkFailed(ctx context.Context, id string, at time.Time) error
}
