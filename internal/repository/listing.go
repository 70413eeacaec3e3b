package repository

import (
	"context"

	"travel/internal/domain"
)

// ListingRepository defines the read operations on the listing catalog.
type ListingRepository interface {
	// GetByID retrieves a listing by ID.
	GetByID(ctx context.Context, id string) (*domain.Listing, error)
}
