package tests

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"travel/internal/domain"
	"travel/internal/service"
)

var (
	traveller = domain.User{ID: "user-1", Email: "abebe@example.com", FirstName: "Abebe", LastName: "Kebede"}
	stranger  = domain.User{ID: "user-2", Email: "other@example.com", FirstName: "Other"}
)

// fixture wires the services to in-memory dependencies.
type fixture struct {
	store      *MockStore
	gateway    *MockGateway
	dispatcher *MockDispatcher
	locks      *MockLockStore
	cache      *MockCache
	payments   *service.PaymentService
	bookings   *service.BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      NewMockStore(),
		gateway:    NewMockGateway(),
		dispatcher: NewMockDispatcher(),
		locks:      NewMockLockStore(),
		cache:      NewMockCache(),
	}
	f.payments = service.NewPaymentService(
		f.store.Bookings(),
		f.store.Payments(),
		f.store.Listings(),
		f.store.Users(),
		f.store,
		f.gateway,
		f.dispatcher,
		f.locks,
		f.cache,
		service.PaymentConfig{Currency: "ETB", LockWait: 200 * time.Millisecond},
		zerolog.Nop(),
	)
	f.bookings = service.NewBookingService(
		f.store.Bookings(),
		f.store.Listings(),
		f.store.Users(),
		f.store,
		f.dispatcher,
		zerolog.Nop(),
	)

	f.store.AddUser(&traveller)
	f.store.AddListing(&domain.Listing{
		ID:            "listing-1",
		Title:         "Lakeside Lodge",
		Location:      "Bahir Dar",
		PricePerNight: decimal.RequireFromString("50.00"),
	})
	return f
}

// seedBooking adds a booking owned by traveller.
func (f *fixture) seedBooking(id string, total string, status domain.BookingStatus) *domain.Booking {
	booking := &domain.Booking{
		ID:         id,
		ListingID:  "listing-1",
		UserID:     traveller.ID,
		CheckIn:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Guests:     2,
		TotalPrice: decimal.RequireFromString(total),
		Status:     status,
		CreatedAt:  time.Now(),
	}
	f.store.AddBooking(booking)
	return booking
}

// seedPayment adds a payment for a booking.
func (f *fixture) seedPayment(id, bookingID, txRef string, status domain.PaymentStatus) *domain.Payment {
	payment := &domain.Payment{
		ID:        id,
		BookingID: bookingID,
		TxRef:     txRef,
		Amount:    decimal.RequireFromString("100.00"),
		Currency:  "ETB",
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.store.AddPayment(payment)
	return payment
}
