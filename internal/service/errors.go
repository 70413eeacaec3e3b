package service

import "errors"

var (
	// ErrForbidden is returned when the requester does not own the booking.
	ErrForbidden = errors.New("you do not have access to this booking")

	// ErrAlreadyPaid is returned when the booking already has a completed payment.
	ErrAlreadyPaid = errors.New("this booking already has a completed payment")

	// ErrMissingTxRef is returned when verification is requested without a reference.
	ErrMissingTxRef = errors.New("tx_ref is required")

	// ErrBookingNotPayable is returned when a payment is initiated for a cancelled booking.
	ErrBookingNotPayable = errors.New("booking cannot be paid in its current state")

	// ErrBookingNotCancellable is returned when a booking is no longer pending.
	ErrBookingNotCancellable = errors.New("booking cannot be cancelled in its current state")

	// ErrPaymentNotPending is returned when the gateway reports success for a failed attempt.
	ErrPaymentNotPending = errors.New("payment attempt is no longer pending")

	// ErrVerificationInProgress is returned when another verification holds the lock too long.
	ErrVerificationInProgress = errors.New("payment verification already in progress")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidPaymentID is returned when payment ID is empty.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrInvalidListingID is returned when listing ID is empty.
	ErrInvalidListingID = errors.New("listing_id is required")

	// ErrInvalidDateRange is returned when check-in is not before check-out.
	ErrInvalidDateRange = errors.New("check_in must be before check_out")

	// ErrInvalidGuests is returned when the guest count is below one.
	ErrInvalidGuests = errors.New("guests must be at least 1")

	// ErrInvalidTotal is returned when the computed total is not positive.
	ErrInvalidTotal = errors.New("total price must be positive")

	// ErrUnauthenticated is returned when no requester identity is present.
	ErrUnauthenticated = errors.New("authentication required")
)
