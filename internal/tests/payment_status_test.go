package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"travel/internal/domain"
	"travel/internal/repository"
	"travel/internal/service"
)

func TestGetPaymentStatus_Owner(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusConfirmed)
	f.seedPayment("payment-1", "booking-1", "tx-1", domain.PaymentStatusCompleted)

	payment, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted || payment.Amount.StringFixed(2) != "100.00" {
		t.Errorf("unexpected payment: %+v", payment)
	}

	// Second read is served from the cache.
	if _, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&f.cache.HitCount) != 1 {
		t.Errorf("expected 1 cache hit, got %d", f.cache.HitCount)
	}
}

func TestGetPaymentStatus_PendingIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)
	f.seedPayment("payment-1", "booking-1", "tx-1", domain.PaymentStatusPending)

	for i := 0; i < 2; i++ {
		payment, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payment.Status != domain.PaymentStatusPending {
			t.Errorf("expected pending, got %s", payment.Status)
		}
	}
	if atomic.LoadInt32(&f.cache.HitCount) != 0 {
		t.Errorf("expected no cache hits for a pending payment, got %d", f.cache.HitCount)
	}
}

func TestGetPaymentStatus_ReadRacingVerification(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)
	f.seedPayment("payment-1", "booking-1", "tx-1", domain.PaymentStatusPending)

	// The verification commits and invalidates between the reader's
	// database read and its cache write.
	var once sync.Once
	f.store.OnGetPayment = func(p *domain.Payment) {
		once.Do(func() {
			if _, err := f.payments.VerifyPayment(context.Background(), "tx-1"); err != nil {
				t.Errorf("verify: unexpected error: %v", err)
			}
		})
	}

	stale, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stale.Status != domain.PaymentStatusPending {
		t.Fatalf("expected the racing read to see pending, got %s", stale.Status)
	}

	payment, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected completed after verification, got %s", payment.Status)
	}
}

func TestGetPaymentStatus_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusConfirmed)
	f.seedPayment("payment-1", "booking-1", "tx-1", domain.PaymentStatusCompleted)

	_, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", stranger.ID)
	if !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	// A cached projection is still owner-checked.
	if _, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = f.payments.GetPaymentStatus(context.Background(), "payment-1", stranger.ID)
	if !errors.Is(err, service.ErrForbidden) {
		t.Errorf("expected ErrForbidden from cache, got %v", err)
	}
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.GetPaymentStatus(context.Background(), "missing", traveller.ID)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPaymentStatus_ReflectsVerification(t *testing.T) {
	f := newFixture(t)
	f.seedBooking("booking-1", "100.00", domain.BookingStatusPending)
	f.seedPayment("payment-1", "booking-1", "tx-1", domain.PaymentStatusPending)

	if _, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.payments.VerifyPayment(context.Background(), "tx-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payment, err := f.payments.GetPaymentStatus(context.Background(), "payment-1", traveller.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected completed after verification, got %s", payment.Status)
	}
	if atomic.LoadInt32(&f.cache.InvalidateCount) != 1 {
		t.Errorf("expected 1 cache invalidation, got %d", f.cache.InvalidateCount)
	}
}
