package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"travel/internal/repository"
)

// TxManager runs repository work inside PostgreSQL transactions.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new TxManager.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// txStore binds repositories to one transaction.
type txStore struct {
	bookings *BookingRepository
	payments *PaymentRepository
}

func (s *txStore) Bookings() repository.BookingRepository { return s.bookings }
func (s *txStore) Payments() repository.PaymentRepository { return s.payments }

// WithinTx runs fn in a transaction, committing only if fn succeeds.
func (m *TxManager) WithinTx(ctx context.Context, fn func(store repository.Store) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	store := &txStore{
		bookings: NewBookingRepositoryWithTx(tx),
		payments: NewPaymentRepositoryWithTx(tx),
	}

	if err = fn(store); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}

	return nil
}

var _ repository.TxManager = (*TxManager)(nil)
