package repository

import "context"

// Store exposes the repositories bound to one transaction.
type Store interface {
	Bookings() BookingRepository
	Payments() PaymentRepository
}

// TxManager runs a function inside a single database transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(store Store) error) error
}
