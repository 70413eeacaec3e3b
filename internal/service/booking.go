package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"travel/internal/domain"
	"travel/internal/notification"
	"travel/internal/repository"
)

// BookingService handles booking operations.
type BookingService struct {
	bookingRepo repository.BookingRepository
	listingRepo repository.ListingRepository
	userRepo    repository.UserRepository
	txManager   repository.TxManager
	dispatcher  notification.Dispatcher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	bookingRepo repository.BookingRepository,
	listingRepo repository.ListingRepository,
	userRepo repository.UserRepository,
	txManager repository.TxManager,
	dispatcher notification.Dispatcher,
	logger zerolog.Logger,
) *BookingService {
	return &BookingService{
		bookingRepo: bookingRepo,
		listingRepo: listingRepo,
		userRepo:    userRepo,
		txManager:   txManager,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateBookingRequest contains the parameters for creating a booking.
type CreateBookingRequest struct {
	Requester domain.User
	ListingID string
	CheckIn   time.Time
	CheckOut  time.Time
	Guests    int
}

// CreateBooking validates and persists a pending booking, then enqueues
// its confirmation email. Enqueue failures never fail the booking.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	if req.Requester.ID == "" {
		return nil, ErrUnauthenticated
	}
	if req.ListingID == "" {
		return nil, ErrInvalidListingID
	}
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() || domain.NightsBetween(req.CheckIn, req.CheckOut) < 1 {
		return nil, ErrInvalidDateRange
	}
	if req.Guests < 1 {
		return nil, ErrInvalidGuests
	}

	listing, err := s.listingRepo.GetByID(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	nights := domain.NightsBetween(req.CheckIn, req.CheckOut)
	total := listing.PricePerNight.Mul(decimal.NewFromInt(int64(nights))).Round(2)
	if !total.IsPositive() {
		return nil, ErrInvalidTotal
	}

	// Verification runs without a requester, so keep the contact details on file.
	requester := req.Requester
	if err := s.userRepo.Upsert(ctx, &requester); err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ID:         uuid.New().String(),
		ListingID:  listing.ID,
		UserID:     requester.ID,
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		Guests:     req.Guests,
		TotalPrice: total,
		Status:     domain.BookingStatusPending,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.enqueueBookingConfirmation(ctx, booking, listing, &requester)

	return booking, nil
}

func (s *BookingService) enqueueBookingConfirmation(ctx context.Context, booking *domain.Booking, listing *domain.Listing, user *domain.User) {
	job := notification.Job{
		ID:            uuid.NewSHA1(uuid.NameSpaceURL, []byte("booking-confirmation:"+booking.ID)).String(),
		Kind:          notification.KindBookingConfirmation,
		Recipient:     user.Email,
		RecipientName: user.FirstName,
		BookingID:     booking.ID,
		ListingName:   listing.Title,
		CheckIn:       booking.CheckIn.Format(notification.DateLayout),
		CheckOut:      booking.CheckOut.Format(notification.DateLayout),
		Guests:        booking.Guests,
		TotalPrice:    booking.TotalPrice.StringFixed(2),
		Currency:      domain.DefaultCurrency,
		CreatedAt:     s.now().UTC(),
	}

	logger := loggerFrom(ctx, s.logger)

	handle, err := s.dispatcher.Enqueue(ctx, job)
	if err != nil {
		logger.Error().Err(err).
			Str("booking_id", booking.ID).
			Msg("failed to enqueue booking confirmation")
		return
	}

	logger.Info().Str("booking_id", booking.ID).Str("job_id", handle.ID).Msg("booking confirmation enqueued")
}

// ListBookings returns the requester's bookings, newest first.
func (s *BookingService) ListBookings(ctx context.Context, userID string) ([]*domain.Booking, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.bookingRepo.ListByUser(ctx, userID)
}

// GetBooking returns a booking owned by the requester.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return booking, nil
}

// CancelBooking cancels a pending booking that has no completed payment.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	var cancelled *domain.Booking
	err := s.txManager.WithinTx(ctx, func(store repository.Store) error {
		booking, err := store.Bookings().GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !booking.OwnedBy(userID) {
			return ErrForbidden
		}

		paid, err := store.Payments().HasCompleted(ctx, booking.ID)
		if err != nil {
			return err
		}
		if paid {
			return ErrBookingNotCancellable
		}

		changed, err := store.Bookings().CompareAndSetStatus(ctx, booking.ID, domain.BookingStatusPending, domain.BookingStatusCancelled)
		if err != nil {
			return err
		}
		if !changed {
			return ErrBookingNotCancellable
		}

		booking.Status = domain.BookingStatusCancelled
		cancelled = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := loggerFrom(ctx, s.logger)
	logger.Info().Str("booking_id", bookingID).Msg("booking cancelled")
	return cancelled, nil
}
