package repository

import (
	"context"

	"travel/internal/domain"
)

// UserRepository defines the persistence operations for users.
type UserRepository interface {
	// Upsert stores the user's contact details, replacing older ones.
	Upsert(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
