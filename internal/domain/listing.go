package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing represents a property that can be booked.
type Listing struct {
	ID            string
	Title         string
	Location      string
	PricePerNight decimal.Decimal
	CreatedAt     time.Time
}
