package postgres

import (
	"context"
	"database/sql"

	"travel/internal/domain"
	"travel/internal/repository"
)

// ListingRepository implements repository.ListingRepository using PostgreSQL.
type ListingRepository struct {
	db *sql.DB
}

// NewListingRepository creates a new ListingRepository.
func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetByID retrieves a listing by ID.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT id, title, location, price_per_night, created_at FROM listings WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var listing domain.Listing
	err := row.Scan(&listing.ID, &listing.Title, &listing.Location, &listing.PricePerNight, &listing.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

var _ repository.ListingRepository = (*ListingRepository)(nil)
