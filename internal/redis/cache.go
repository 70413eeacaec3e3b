package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles entity caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// PaymentCacheTTL bounds how stale a cached payment projection may get
// if an invalidation is lost.
const PaymentCacheTTL = 30 * time.Second

const paymentCachePrefix = "cache:payment:"

// CachedPayment represents a cached payment projection.
type CachedPayment struct {
	ID            string     `json:"id"`
	BookingID     string     `json:"booking_id"`
	OwnerID       string     `json:"owner_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	TxRef         string     `json:"tx_ref"`
	CheckoutURL   string     `json:"checkout_url"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// GetPayment retrieves a payment projection from cache.
// Returns nil on a cache miss.
func (s *CacheStore) GetPayment(ctx context.Context, paymentID string) (*CachedPayment, error) {
	data, err := s.client.Get(ctx, paymentCachePrefix+paymentID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var payment CachedPayment
	if err := json.Unmarshal(data, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetPayment stores a payment projection in cache.
func (s *CacheStore) SetPayment(ctx context.Context, payment *CachedPayment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, paymentCachePrefix+payment.ID, data, PaymentCacheTTL).Err()
}

// InvalidatePayment removes a payment projection from cache.
func (s *CacheStore) InvalidatePayment(ctx context.Context, paymentID string) error {
	return s.client.Del(ctx, paymentCachePrefix+paymentID).Err()
}
