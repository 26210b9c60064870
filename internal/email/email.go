package email

import (
	"context"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/logger"
)

// Sender turns booking notifications into customer mails. Delivery is a log
// line until an SMTP relay is configured.
type Sender struct {
	log logger.Logger
}

func NewSender(log logger.Logger) *Sender {
	return &Sender{log: log.With("component", "email")}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, ok := Subject(event)
	if !ok {
		s.log.Debug("no mail for event", "type", event.Type, "reference", event.Reference)
		return nil
	}
	if event.Email == "" {
		return fmt.Errorf("event %s for %s has no recipient", event.Type, event.Reference)
	}
	s.log.Info("send email",
		"to", event.Email,
		"subject", subject,
		"reference", event.Reference,
		"package", event.PackageTitle,
		"people", event.NumberOfPeople,
	)
	return nil
}

// Subject returns the mail subject for customer-facing events.
func Subject(event kafka.BookingEvent) (string, bool) {
	switch event.Type {
	case kafka.EventBookingCreated:
		return fmt.Sprintf("Booking %s received", event.Reference), true
	case kafka.EventBookingPaid:
		if event.PromoOrder != nil {
			return fmt.Sprintf("Booking %s confirmed (launch offer #%d)", event.Reference, *event.PromoOrder), true
		}
		return fmt.Sprintf("Booking %s confirmed", event.Reference), true
	case kafka.EventBookingFailed:
		return fmt.Sprintf("Payment for booking %s failed", event.Reference), true
	case kafka.EventBookingCancelled:
		return fmt.Sprintf("Booking %s cancelled", event.Reference), true
	}
	return "", false
}
