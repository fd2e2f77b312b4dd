package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxSeatsPerBooking caps how many seats one booking may claim.
const MaxSeatsPerBooking = 6

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Active reports whether a booking in this state still claims its seats.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// PaymentStatus tracks the payment side of a booking.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentMethod selects the initial booking state: cash bookings wait for
// payment at the counter, online bookings arrive pre-authorized.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentOnline
}

// InitialStatus returns the (status, payment status) pair a new booking
// starts in for this payment method.
func (m PaymentMethod) InitialStatus() (BookingStatus, PaymentStatus) {
	if m == PaymentOnline {
		return BookingConfirmed, PaymentPaid
	}
	return BookingPending, PaymentPending
}

// Booking records a user's claim on 1–6 seats of a show.  Show metadata
// is copied at creation time so the record stays meaningful even if the
// catalog changes.  Seats never change after creation.
//
// Fields:
//  ID               – primary key identifier.
//  Reference        – public booking reference (BK-…).
//  UserID           – user who made the booking.
//  ShowID           – show being booked.
//  MovieTitle       – copied from the show.
//  Theater          – copied from the show.
//  Screen           – copied from the show.
//  ShowTime         – copied show start time.
//  Seats            – booked seats, unique.
//  TotalAmountCents – seat count × show price at commit time.
//  Status           – pending, confirmed or cancelled.
//  PaymentStatus    – pending, paid or failed.
//  PaymentMethod    – cash or online.
//  PaymentRef       – payment-provider reference used for reconciliation.
type Booking struct {
	ID               uint64        `json:"id"`
	Reference        string        `json:"booking_reference"`
	UserID           uint64        `json:"user_id"`
	ShowID           uint64        `json:"show_id"`
	MovieTitle       string        `json:"movie_title"`
	Theater          string        `json:"theater"`
	Screen           string        `json:"screen"`
	ShowTime         time.Time     `json:"show_time"`
	Seats            []SeatID      `json:"seats"`
	TotalAmountCents uint64        `json:"total_amount_cents"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	PaymentRef       *string       `json:"payment_ref,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// SeatCount returns the number of seats in the booking.
func (b Booking) SeatCount() int { return len(b.Seats) }

// NewBookingReference returns a fresh public reference.
func NewBookingReference() string {
	id := uuid.New().String()
	return "BK-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:12])
}

// JoinSeats encodes seats as the comma separated list stored in
// bookings.seats.
func JoinSeats(seats []SeatID) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// SplitSeats is the inverse of JoinSeats.
func SplitSeats(raw string) []SeatID {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]SeatID, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, SeatID(p))
		}
	}
	return out
}

// SameSeats reports whether a and b contain the same seats in any order.
func SameSeats(a, b []SeatID) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]SeatID(nil), a...)
	y := append([]SeatID(nil), b...)
	sort.Slice(x, func(i, j int) bool { return x[i] < x[j] })
	sort.Slice(y, func(i, j int) bool { return y[i] < y[j] })
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Transition describes a guarded status change applied by a booking store.
// It is applied only when the booking's current status is one of From and,
// if RequirePayment is set, its payment status equals it.  When
// ReleaseSeats is true the booking's seats return to the pool and the
// show's counter is decremented in the same unit of work.
type Transition struct {
	From           []BookingStatus
	RequirePayment *PaymentStatus
	To             BookingStatus
	ToPayment      *PaymentStatus
	PaymentRef     *string
	ReleaseSeats   bool
	At             time.Time
}

// Allows reports whether the transition may be applied to b.
func (t Transition) Allows(b Booking) bool {
	ok := false
	for _, s := range t.From {
		if b.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if t.RequirePayment != nil && b.PaymentStatus != *t.RequirePayment {
		return false
	}
	return true
}

// Apply returns b with the transition's target state.  It does not check
// Allows.
func (t Transition) Apply(b Booking) Booking {
	b.Status = t.To
	if t.ToPayment != nil {
		b.PaymentStatus = *t.ToPayment
	}
	if t.PaymentRef != nil && b.PaymentRef == nil {
		ref := *t.PaymentRef
		b.PaymentRef = &ref
	}
	if !t.At.IsZero() {
		b.UpdatedAt = t.At
	}
	return b
}

// PaymentMatch selects the pending booking a payment event refers to.
// A booking whose stored payment reference equals Ref is preferred.  When
// none exists and Seats is non-empty, the booking must belong to UserID,
// be for ShowID and hold exactly Seats.
type PaymentMatch struct {
	Ref    string
	UserID uint64
	ShowID uint64
	Seats  []SeatID
}

// BySeats reports whether the match can fall back to the seat set.
func (m PaymentMatch) BySeats() bool {
	return m.UserID != 0 && m.ShowID != 0 && len(m.Seats) > 0
}
