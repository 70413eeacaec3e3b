package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireVerifyLock(ctx context.Context, txRef string, ttl time.Duration) (string, bool, error)
	ReleaseVerifyLock(ctx context.Context, txRef, token string) error
}

// PaymentCacheInterface defines the interface for payment projection caching.
type PaymentCacheInterface interface {
	GetPayment(ctx context.Context, paymentID string) (*CachedPayment, error)
	SetPayment(ctx context.Context, payment *CachedPayment) error
	InvalidatePayment(ctx context.Context, paymentID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface    = (*LockStore)(nil)
	_ PaymentCacheInterface = (*CacheStore)(nil)
)
