package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"travel/internal/domain"
	"travel/internal/notification"
	"travel/internal/repository"
	"travel/internal/service"
)

func bookingRequest() service.CreateBookingRequest {
	return service.CreateBookingRequest{
		Requester: traveller,
		ListingID: "listing-1",
		CheckIn:   time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:  time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC),
		Guests:    2,
	}
}

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture(t)

	booking, err := f.bookings.CreateBooking(context.Background(), bookingRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != domain.BookingStatusPending {
		t.Errorf("expected pending, got %s", booking.Status)
	}
	if booking.TotalPrice.StringFixed(2) != "100.00" {
		t.Errorf("expected total 100.00, got %s", booking.TotalPrice.StringFixed(2))
	}
	if booking.UserID != traveller.ID {
		t.Errorf("expected owner %s, got %s", traveller.ID, booking.UserID)
	}
	if f.store.GetBooking(booking.ID) == nil {
		t.Error("booking not persisted")
	}

	jobs := f.dispatcher.Jobs(notification.KindBookingConfirmation)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 booking confirmation, got %d", len(jobs))
	}
	if jobs[0].BookingID != booking.ID || jobs[0].CheckIn != "2025-07-10" || jobs[0].CheckOut != "2025-07-12" {
		t.Errorf("unexpected job: %+v", jobs[0])
	}
}

func TestCreateBooking_EnqueueFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.EnqueueError = errors.New("broker down")

	booking, err := f.bookings.CreateBooking(context.Background(), bookingRequest())
	if err != nil {
		t.Fatalf("enqueue failure must not fail booking: %v", err)
	}
	if f.store.GetBooking(booking.ID) == nil {
		t.Error("booking not persisted")
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *service.CreateBookingRequest)
		want   error
	}{
		{"no listing", func(r *service.CreateBookingRequest) { r.ListingID = "" }, service.ErrInvalidListingID},
		{"same day", func(r *service.CreateBookingRequest) { r.CheckOut = r.CheckIn }, service.ErrInvalidDateRange},
		{"reversed dates", func(r *service.CreateBookingRequest) { r.CheckIn, r.CheckOut = r.CheckOut, r.CheckIn }, service.ErrInvalidDateRange},
		{"no guests", func(r *service.CreateBookingRequest) { r.Guests = 0 }, service.ErrInvalidGuests},
		{"anonymous", func(r *service.CreateBookingRequest) { r.Requester = domain.User{} }, service.ErrUnauthenticated},
		{"unknown listing", func(r *service.CreateBookingRequest) { r.ListingID = "listing-x" }, repository.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := bookingRequest()
			tc.mutate(&req)

			_, err := f.bookings.CreateBooking(context.Background(), req)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if n := len(f.dispatcher.Jobs(notification.KindBookingConfirmation)); n != 0 {
				t.Errorf("expected no confirmation, got %d", n)
			}
		})
	}
}

func TestGetBooking_Ownership(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)

	if _, err := f.bookings.GetBooking(context.Background(), "booking-1", traveller.ID); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := f.bookings.GetBooking(context.Background(), "booking-1", stranger.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestListBookings_OnlyOwn(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)
	f.store.AddBooking(&domain.Booking{ID: "booking-2", ListingID: "listing-1", UserID: stranger.ID, Status: domain.BookingStatusPending})

	bookings, err := f.bookings.ListBookings(context.Background(), traveller.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bookings) != 1 || bookings[0].ID != "booking-1" {
		t.Errorf("expected only booking-1, got %v", bookings)
	}
}

func TestCancelBooking(t *testing.T) {
	t.Run("pending booking", func(t *testing.T) {
		f := newFixture(t)
		f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)

		booking, err := f.bookings.CancelBooking(context.Background(), "booking-1", traveller.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if booking.Status != domain.BookingStatusCancelled {
			t.Errorf("expected cancelled, got %s", booking.Status)
		}
		if got := f.store.GetBooking("booking-1").Status; got != domain.BookingStatusCancelled {
			t.Errorf("expected stored status cancelled, got %s", got)
		}
	})

	t.Run("paid booking", func(t *testing.T) {
		f := newFixture(t)
		f.seedBooking("booking-1", "100.00", domain.BookingStatusConfirmed)
		f.seedPayment("payment-1", "booking-1", "tx-1", domain.PaymentStatusCompleted)

		_, err := f.bookings.CancelBooking(context.Background(), "booking-1", traveller.ID)
		if !errors.Is(err, service.ErrBookingNotCancellable) {
			t.Errorf("expected ErrBookingNotCancellable, got %v", err)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t)
		f.seedBooking("booking-1", "100.00", domain.BookingStatusCancelled)

		_, err := f.bookings.CancelBooking(context.Background(), "booking-1", traveller.ID)
		if !errors.Is(err, service.ErrBookingNotCancellable) {
			t.Errorf("expected ErrBookingNotCancellable, got %v", err)
		}
	})

	t.Run("foreign booking", func(t *testing.T) {
		f := newFixture(t)
		f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)

		_, err := f.bookings.CancelBooking(context.Background(), "booking-1", stranger.ID)
		if !errors.Is(err, service.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if got := f.store.GetBooking("booking-1").Status; got != domain.BookingStatusPending {
			t.Errorf("expected pending, got %s", got)
		}
	})
}
