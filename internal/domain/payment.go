package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "ETB"

// Payment represents one attempt to pay for a booking through the gateway.
type Payment struct {
	ID            string
	BookingID     string
	TxRef         string // client-generated, unique per attempt
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	PaymentMethod string
	CheckoutURL   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	VerifiedAt    *time.Time
}

// IsPending reports whether the payment still awaits verification.
func (p *Payment) IsPending() bool {
	return p.Status == PaymentStatusPending
}

// MarkCompleted records a successful verification.
func (p *Payment) MarkCompleted(method string, at time.Time) {
	p.Status = PaymentStatusCompleted
	p.PaymentMethod = method
	p.UpdatedAt = at
	verified := at
	p.VerifiedAt = &verified
}

// MarkFailed records a failed verification.
func (p *Payment) MarkFailed(at time.Time) {
	p.Status = PaymentStatusFailed
	p.UpdatedAt = at
}
