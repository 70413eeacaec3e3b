package notification

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a job has no template.
var ErrUnknownKind = errors.New("unknown notification kind")

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Render builds the email for a job.
func Render(job Job) (Message, error) {
	if job.Recipient == "" {
		return Message{}, errors.New("notification job has no recipient")
	}

	var subject string
	var b strings.Builder

	fmt.Fprintf(&b, "Dear %s,\n\n", greetingName(job))

	switch job.Kind {
	case KindBookingConfirmation:
		subject = "Booking Confirmation - " + job.ListingName
		b.WriteString("Thank you for your booking!\n\n")
		writeBookingDetails(&b, job)
		b.WriteString("\nYour booking is reserved and awaits payment. We look forward to hosting you!\n")

	case KindPaymentConfirmation:
		subject = "Payment Confirmation - " + job.ListingName
		b.WriteString("We have received your payment and your booking is now confirmed.\n\n")
		writeBookingDetails(&b, job)
		fmt.Fprintf(&b, "Transaction Reference: %s\n", job.TxRef)

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}

	b.WriteString("\nIf you have any questions, please don't hesitate to contact us.\n\nBest regards,\nTravel Booking Team\n")

	return Message{To: job.Recipient, Subject: subject, Body: b.String()}, nil
}

func greetingName(job Job) string {
	if job.RecipientName != "" {
		return job.RecipientName
	}
	return "Customer"
}

func writeBookingDetails(b *strings.Builder, job Job) {
	b.WriteString("Booking Details:\n----------------\n")
	fmt.Fprintf(b, "Booking ID: %s\n", job.BookingID)
	fmt.Fprintf(b, "Property: %s\n", job.ListingName)
	fmt.Fprintf(b, "Check-in Date: %s\n", job.CheckIn)
	fmt.Fprintf(b, "Check-out Date: %s\n", job.CheckOut)
	if job.Guests > 0 {
		fmt.Fprintf(b, "Guests: %d\n", job.Guests)
	}
	if job.TotalPrice != "" {
		fmt.Fprintf(b, "Total: %s %s\n", job.TotalPrice, job.Currency)
	}
}
