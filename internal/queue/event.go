// Package queue carries booking lifecycle events out to RabbitMQ and
// payment outcomes in from it.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

// Queue names.
const (
	BookingEventsQueue = "booking.events"
	PaymentEventsQueue = "payment.events"
)

// BookingEvent is published whenever a booking is created, confirmed,
// cancelled or fails payment.  It carries enough for downstream consumers
// to notify or report without querying the primary database.
type BookingEvent struct {
	Event            string   `json:"event"`
	BookingID        uint64   `json:"booking_id"`
	Reference        string   `json:"booking_reference"`
	UserID           uint64   `json:"user_id"`
	ShowID           uint64   `json:"show_id"`
	MovieTitle       string   `json:"movie_title"`
	Theater          string   `json:"theater"`
	Screen           string   `json:"screen"`
	ShowTime         string   `json:"show_time"`
	Seats            []string `json:"seats"`
	TotalAmountCents uint64   `json:"total_amount_cents"`
	Status           string   `json:"status"`
	PaymentStatus    string   `json:"payment_status"`
	PaymentMethod    string   `json:"payment_method"`
	OccurredAt       string   `json:"occurred_at"`
}

// NewBookingEvent flattens b into the wire format.
func NewBookingEvent(event string, b model.Booking) BookingEvent {
	seats := make([]string, len(b.Seats))
	for i, s := range b.Seats {
		seats[i] = string(s)
	}
	occurred := b.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return BookingEvent{
		Event:            event,
		BookingID:        b.ID,
		Reference:        b.Reference,
		UserID:           b.UserID,
		ShowID:           b.ShowID,
		MovieTitle:       b.MovieTitle,
		Theater:          b.Theater,
		Screen:           b.Screen,
		ShowTime:         b.ShowTime.UTC().Format(time.RFC3339),
		Seats:            seats,
		TotalAmountCents: b.TotalAmountCents,
		Status:           string(b.Status),
		PaymentStatus:    string(b.PaymentStatus),
		PaymentMethod:    string(b.PaymentMethod),
		OccurredAt:       occurred.UTC().Format(time.RFC3339),
	}
}

// PaymentEventMessage is what payment providers publish to
// payment.events.  It matches the webhook body.
type PaymentEventMessage struct {
	Status     string   `json:"status"`
	PaymentRef string   `json:"payment_ref"`
	ShowID     uint64   `json:"show_id"`
	UserID     uint64   `json:"user_id"`
	Seats      []string `json:"seats"`
}

// ToPaymentEvent converts the message for the reconciler.
func (m PaymentEventMessage) ToPaymentEvent() service.PaymentEvent {
	return service.PaymentEvent{
		Outcome:    service.PaymentOutcome(m.Status),
		PaymentRef: m.PaymentRef,
		ShowID:     m.ShowID,
		UserID:     m.UserID,
		Seats:      m.Seats,
	}
}
