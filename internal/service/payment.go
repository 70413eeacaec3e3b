package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"travel/internal/domain"
	"travel/internal/gateway"
	"travel/internal/metrics"
	"travel/internal/notification"
	"travel/internal/redis"
	"travel/internal/repository"
)

// Gateway is the external payment provider.
type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error)
	Verify(ctx context.Context, txRef string) (*gateway.VerifyResult, error)
}

// PaymentConfig holds the settings the orchestrator passes to the gateway.
type PaymentConfig struct {
	Currency    string
	CallbackURL string
	ReturnURL   string
	// LockTTL bounds how long a crashed verifier can block a tx_ref.
	LockTTL time.Duration
	// LockWait is how long a verifier waits for a concurrent one to finish.
	LockWait time.Duration
}

const (
	checkoutTitle = "Travel Booking Payment"

	defaultLockTTL  = 15 * time.Second
	defaultLockWait = 5 * time.Second
)

// PaymentService coordinates bookings, payments, the gateway and notifications.
type PaymentService struct {
	bookingRepo repository.BookingRepository
	paymentRepo repository.PaymentRepository
	listingRepo repository.ListingRepository
	userRepo    repository.UserRepository
	txManager   repository.TxManager
	gateway     Gateway
	dispatcher  notification.Dispatcher
	locks       redis.LockStoreInterface
	cache       redis.PaymentCacheInterface
	cfg         PaymentConfig
	logger      zerolog.Logger

	now      func() time.Time
	newTxRef func() string
}

// NewPaymentService creates a new PaymentService. locks and cache may be nil.
func NewPaymentService(
	bookingRepo repository.BookingRepository,
	paymentRepo repository.PaymentRepository,
	listingRepo repository.ListingRepository,
	userRepo repository.UserRepository,
	txManager repository.TxManager,
	gw Gateway,
	dispatcher notification.Dispatcher,
	locks redis.LockStoreInterface,
	cache redis.PaymentCacheInterface,
	cfg PaymentConfig,
	logger zerolog.Logger,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return &PaymentService{
		bookingRepo: bookingRepo,
		paymentRepo: paymentRepo,
		listingRepo: listingRepo,
		userRepo:    userRepo,
		txManager:   txManager,
		gateway:     gw,
		dispatcher:  dispatcher,
		locks:       locks,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		newTxRef:    NewTxRef,
	}
}

// NewTxRef returns a fresh transaction reference: 122 random bits, prefixed for traceability.
func NewTxRef() string {
	return "tx-" + uuid.NewString()
}

// InitiatePaymentRequest contains the parameters for initiating a payment.
type InitiatePaymentRequest struct {
	BookingID string
	Requester domain.User
}

// InitiatePaymentResult is returned to the payer.
type InitiatePaymentResult struct {
	PaymentID   string
	CheckoutURL string
	TxRef       string
}

// InitiatePayment opens a gateway checkout for the booking and records a pending payment.
// The gateway is called before any row lock is taken; the completed-payment guard is
// re-checked under the booking row lock before the payment is inserted.
func (s *PaymentService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResult, error) {
	if req.BookingID == "" {
		return nil, ErrInvalidBookingID
	}
	logger := loggerFrom(ctx, s.logger).With().Str("booking_id", req.BookingID).Logger()

	booking, err := s.bookingRepo.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.OwnedBy(req.Requester.ID) {
		return nil, ErrForbidden
	}
	if booking.Status == domain.BookingStatusCancelled {
		return nil, ErrBookingNotPayable
	}

	paid, err := s.paymentRepo.HasCompleted(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		metrics.IncPaymentInitiated("already_paid")
		return nil, ErrAlreadyPaid
	}

	txRef := s.newTxRef()
	logger = logger.With().Str("tx_ref", txRef).Logger()

	checkout, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Amount:      booking.TotalPrice,
		Currency:    s.cfg.Currency,
		Email:       req.Requester.Email,
		FirstName:   req.Requester.DisplayFirstName(),
		LastName:    req.Requester.LastName,
		TxRef:       txRef,
		CallbackURL: s.cfg.CallbackURL,
		ReturnURL:   s.cfg.ReturnURL,
		Title:       checkoutTitle,
		Description: fmt.Sprintf("Payment for booking %s", booking.ID),
	})
	if err != nil {
		metrics.IncPaymentInitiated("gateway_error")
		logger.Warn().Err(err).Msg("payment initialization failed")
		return nil, err
	}

	now := s.now().UTC()
	payment := &domain.Payment{
		ID:          uuid.New().String(),
		BookingID:   booking.ID,
		TxRef:       txRef,
		Amount:      booking.TotalPrice,
		Currency:    s.cfg.Currency,
		Status:      domain.PaymentStatusPending,
		CheckoutURL: checkout.CheckoutURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.txManager.WithinTx(ctx, func(store repository.Store) error {
		locked, err := store.Bookings().GetByIDForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		if locked.Status == domain.BookingStatusCancelled {
			return ErrBookingNotPayable
		}

		paid, err := store.Payments().HasCompleted(ctx, booking.ID)
		if err != nil {
			return err
		}
		if paid {
			return ErrAlreadyPaid
		}

		return store.Payments().Create(ctx, payment)
	})
	if err != nil {
		metrics.IncPaymentInitiated("persist_error")
		// The gateway already holds a checkout for txRef that no local record points to.
		logger.Error().Err(err).Str("checkout_url", checkout.CheckoutURL).Msg("payment not recorded after gateway checkout was created")
		return nil, err
	}

	metrics.IncPaymentInitiated("success")
	logger.Info().Str("payment_id", payment.ID).Msg("payment initiated")

	return &InitiatePaymentResult{
		PaymentID:   payment.ID,
		CheckoutURL: payment.CheckoutURL,
		TxRef:       payment.TxRef,
	}, nil
}

// VerifyPaymentResult reports the payment's state after verification.
type VerifyPaymentResult struct {
	PaymentID string
	BookingID string
	Status    domain.PaymentStatus
	// Replayed is true when the call changed nothing.
	Replayed bool
}

// VerifyPayment reconciles a payment with the gateway's verdict. It is safe to call
// repeatedly for the same tx_ref: only the first successful call transitions state and
// enqueues the payment confirmation.
func (s *PaymentService) VerifyPayment(ctx context.Context, txRef string) (*VerifyPaymentResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrMissingTxRef
	}
	logger := loggerFrom(ctx, s.logger).With().Str("tx_ref", txRef).Logger()

	verdict, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		metrics.IncPaymentVerified("gateway_error")
		logger.Warn().Err(err).Msg("payment verification failed at gateway")
		return nil, err
	}

	payment, transitioned, err := s.recordVerdict(ctx, txRef, verdict, logger)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyPaid):
			logger.Error().Err(err).Msg("gateway confirmed a second payment for an already paid booking")
		case errors.Is(err, ErrPaymentNotPending):
			logger.Warn().Err(err).Msg("gateway reported success for a failed payment attempt")
		}
		metrics.IncPaymentVerified("error")
		return nil, err
	}

	if transitioned {
		s.invalidateCache(ctx, payment.ID, logger)
	}

	switch {
	case transitioned && payment.Status == domain.PaymentStatusCompleted:
		metrics.IncPaymentVerified("completed")
		logger.Info().Str("payment_id", payment.ID).Str("booking_id", payment.BookingID).Msg("payment completed, booking confirmed")
		s.enqueuePaymentConfirmation(ctx, payment, logger)
	case transitioned:
		metrics.IncPaymentVerified("failed")
		logger.Info().Str("payment_id", payment.ID).Msg("payment failed")
	default:
		metrics.IncPaymentVerified("replay")
		logger.Debug().Str("payment_id", payment.ID).Str("status", string(payment.Status)).Msg("verification replay")
	}

	return &VerifyPaymentResult{
		PaymentID: payment.ID,
		BookingID: payment.BookingID,
		Status:    payment.Status,
		Replayed:  !transitioned,
	}, nil
}

// recordVerdict applies the gateway verdict in one transaction. The verify lock is
// held for the transaction only; cache invalidation and notification run after it
// is released.
func (s *PaymentService) recordVerdict(ctx context.Context, txRef string, verdict *gateway.VerifyResult, logger zerolog.Logger) (*domain.Payment, bool, error) {
	release, err := s.lockVerification(ctx, txRef, logger)
	if err != nil {
		return nil, false, err
	}
	defer release()

	var payment *domain.Payment
	var transitioned bool

	err = s.txManager.WithinTx(ctx, func(store repository.Store) error {
		p, err := store.Payments().GetByTxRefForUpdate(ctx, txRef)
		if err != nil {
			return err
		}
		payment = p

		if verdict.Succeeded() {
			transitioned, err = s.applySuccess(ctx, store, p, verdict.PaymentMethod, logger)
		} else {
			transitioned, err = s.applyFailure(ctx, store, p)
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return payment, transitioned, nil
}

// applySuccess completes the payment and confirms its booking in the caller's transaction.
func (s *PaymentService) applySuccess(ctx context.Context, store repository.Store, p *domain.Payment, method string, logger zerolog.Logger) (bool, error) {
	switch p.Status {
	case domain.PaymentStatusCompleted:
		return false, nil
	case domain.PaymentStatusFailed:
		return false, ErrPaymentNotPending
	}

	now := s.now().UTC()
	if err := store.Payments().MarkCompleted(ctx, p.ID, method, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return false, ErrAlreadyPaid
		case errors.Is(err, repository.ErrConflict):
			return false, ErrPaymentNotPending
		}
		return false, err
	}

	confirmed, err := store.Bookings().CompareAndSetStatus(ctx, p.BookingID, domain.BookingStatusPending, domain.BookingStatusConfirmed)
	if err != nil {
		return false, err
	}
	if !confirmed {
		// Money was captured, so the payment stands; the booking needs manual follow-up.
		logger.Error().Str("booking_id", p.BookingID).Str("payment_id", p.ID).Msg("payment completed for a booking that is not pending")
	}

	p.MarkCompleted(method, now)
	return true, nil
}

// applyFailure fails a pending payment. Terminal payments are left untouched.
func (s *PaymentService) applyFailure(ctx context.Context, store repository.Store, p *domain.Payment) (bool, error) {
	if !p.IsPending() {
		return false, nil
	}

	now := s.now().UTC()
	if err := store.Payments().MarkFailed(ctx, p.ID, now); err != nil {
		return false, err
	}

	p.MarkFailed(now)
	return true, nil
}

// lockVerification serializes verifiers of one tx_ref across instances. If Redis is
// unreachable it degrades to the row lock and conditional update alone.
func (s *PaymentService) lockVerification(ctx context.Context, txRef string, logger zerolog.Logger) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}

	deadline := time.Now().Add(s.cfg.LockWait)
	backoff := 25 * time.Millisecond

	for {
		token, ok, err := s.locks.AcquireVerifyLock(ctx, txRef, s.cfg.LockTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("verify lock unavailable, relying on row lock")
			return func() {}, nil
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if err := s.locks.ReleaseVerifyLock(releaseCtx, txRef, token); err != nil {
					logger.Warn().Err(err).Msg("failed to release verify lock")
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrVerificationInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

func (s *PaymentService) enqueuePaymentConfirmation(ctx context.Context, payment *domain.Payment, logger zerolog.Logger) {
	booking, err := s.bookingRepo.GetByID(ctx, payment.BookingID)
	if err != nil {
		logger.Error().Err(err).Msg("payment confirmation skipped: booking lookup failed")
		return
	}
	user, err := s.userRepo.GetByID(ctx, booking.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("payment confirmation skipped: user lookup failed")
		return
	}
	listing, err := s.listingRepo.GetByID(ctx, booking.ListingID)
	if err != nil {
		logger.Error().Err(err).Msg("payment confirmation skipped: listing lookup failed")
		return
	}

	job := notification.Job{
		// Derived from the payment so a repeated enqueue is deduplicated by the worker.
		ID:            uuid.NewSHA1(uuid.NameSpaceURL, []byte("payment-confirmation:"+payment.ID)).String(),
		Kind:          notification.KindPaymentConfirmation,
		Recipient:     user.Email,
		RecipientName: user.FirstName,
		BookingID:     booking.ID,
		ListingName:   listing.Title,
		CheckIn:       booking.CheckIn.Format(notification.DateLayout),
		CheckOut:      booking.CheckOut.Format(notification.DateLayout),
		Guests:        booking.Guests,
		TotalPrice:    payment.Amount.StringFixed(2),
		PaymentID:     payment.ID,
		TxRef:         payment.TxRef,
		Currency:      payment.Currency,
		CreatedAt:     s.now().UTC(),
	}

	handle, err := s.dispatcher.Enqueue(ctx, job)
	if err != nil {
		logger.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to enqueue payment confirmation")
		return
	}
	logger.Info().Str("job_id", handle.ID).Msg("payment confirmation enqueued")
}

// GetPaymentStatus returns a payment owned by the requester.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, paymentID, userID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}
	logger := loggerFrom(ctx, s.logger).With().Str("payment_id", paymentID).Logger()

	if s.cache != nil {
		cached, err := s.cache.GetPayment(ctx, paymentID)
		if err != nil {
			logger.Debug().Err(err).Msg("payment cache read failed")
		} else if cached != nil {
			if payment, err := paymentFromCache(cached); err == nil {
				if cached.OwnerID != userID {
					return nil, ErrForbidden
				}
				return payment, nil
			}
		}
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookingRepo.GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.OwnedBy(userID) {
		return nil, ErrForbidden
	}

	// Pending payments are never cached; only terminal statuses are immutable.
	if s.cache != nil && payment.Status.Terminal() {
		if err := s.cache.SetPayment(ctx, paymentToCache(payment, booking.UserID)); err != nil {
			logger.Debug().Err(err).Msg("payment cache write failed")
		}
	}

	return payment, nil
}

func (s *PaymentService) invalidateCache(ctx context.Context, paymentID string, logger zerolog.Logger) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePayment(ctx, paymentID); err != nil {
		logger.Warn().Err(err).Str("payment_id", paymentID).Msg("payment cache invalidation failed")
	}
}

func paymentToCache(p *domain.Payment, ownerID string) *redis.CachedPayment {
	return &redis.CachedPayment{
		ID:            p.ID,
		BookingID:     p.BookingID,
		OwnerID:       ownerID,
		Amount:        p.Amount.StringFixed(2),
		Currency:      p.Currency,
		Status:        string(p.Status),
		PaymentMethod: p.PaymentMethod,
		TxRef:         p.TxRef,
		CheckoutURL:   p.CheckoutURL,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		VerifiedAt:    p.VerifiedAt,
	}
}

func paymentFromCache(c *redis.CachedPayment) (*domain.Payment, error) {
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return nil, err
	}
	return &domain.Payment{
		ID:            c.ID,
		BookingID:     c.BookingID,
		TxRef:         c.TxRef,
		Amount:        amount,
		Currency:      c.Currency,
		Status:        domain.PaymentStatus(c.Status),
		PaymentMethod: c.PaymentMethod,
		CheckoutURL:   c.CheckoutURL,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		VerifiedAt:    c.VerifiedAt,
	}, nil
}
