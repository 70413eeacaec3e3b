package notification

import (
	"context"
	"time"
)

// Kind identifies which confirmation a job carries.
type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindPaymentConfirmation Kind = "payment_confirmation"
)

// RoutingKey returns the queue routing key for the kind.
func (k Kind) RoutingKey() string {
	return "notification." + string(k)
}

// DateLayout formats dates carried in jobs.
const DateLayout = "2006-01-02"

// Job is a deferred confirmation message. It is delivered at least once,
// so consumers deduplicate on ID.
type Job struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Recipient     string    `json:"recipient"`
	RecipientName string    `json:"recipient_name,omitempty"`
	BookingID     string    `json:"booking_id"`
	ListingName   string    `json:"listing_name"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Guests        int       `json:"guests,omitempty"`
	TotalPrice    string    `json:"total_price,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	TxRef         string    `json:"tx_ref,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// JobHandle identifies an enqueued job.
type JobHandle struct {
	ID string
}

// Dispatcher hands jobs to a durable queue without waiting for delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, job Job) (JobHandle, error)
}
