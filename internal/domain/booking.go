package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the current status of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// Booking represents a reservation of a listing for a date range.
type Booking struct {
	ID         string
	ListingID  string
	UserID     string
	CheckIn    time.Time
	CheckOut   time.Time
	Guests     int
	TotalPrice decimal.Decimal
	Status     BookingStatus
	CreatedAt  time.Time
}

// Nights returns the number of nights between check-in and check-out.
func (b *Booking) Nights() int {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

// OwnedBy reports whether the booking belongs to the given user.
func (b *Booking) OwnedBy(userID string) bool {
	return userID != "" && b.UserID == userID
}

// NightsBetween counts calendar nights from checkIn to checkOut.
func NightsBetween(checkIn, checkOut time.Time) int {
	in := time.Date(checkIn.Year(), checkIn.Month(), checkIn.Day(), 0, 0, 0, 0, time.UTC)
	out := time.Date(checkOut.Year(), checkOut.Month(), checkOut.Day(), 0, 0, 0, 0, time.UTC)
	return int(out.Sub(in).Hours() / 24)
}
