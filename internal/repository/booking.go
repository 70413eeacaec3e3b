package repository

import (
	"context"

	"travel/internal/domain"
)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByIDForUpdate retrieves a booking and locks its row until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Booking, error)

	// ListByUser retrieves the bookings owned by a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Booking, error)

	// CompareAndSetStatus moves the booking from one status to another.
	// Returns false if the booking was not in the expected status.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.BookingStatus) (bool, error)
}
