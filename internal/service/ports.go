package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// LockStore keeps temporary per-seat locks.  Every implementation must
// make Acquire atomic per (show, seat) and treat locks whose ExpiresAt is
// not after now as absent.
type LockStore interface {
	// Acquire grants holder a lock on seat until now+ttl.  It fails with
	// model.ErrAlreadyLocked when another live lock exists and with
	// model.ErrAlreadyBooked when the store can tell an active booking
	// claims the seat.
	Acquire(ctx context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time, ttl time.Duration) (model.SeatLock, error)
	// Release removes holder's live lock on seat, or returns
	// model.ErrLockNotFound.
	Release(ctx context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time) error
	// ReleaseHeld removes holder's locks on the given seats of a show, or
	// all of them when seats is nil, and reports how many were removed.
	ReleaseHeld(ctx context.Context, showID, holder uint64, seats []model.SeatID) (int, error)
	// ActiveByShow lists the live locks of a show.
	ActiveByShow(ctx context.Context, showID uint64, now time.Time) ([]model.SeatLock, error)
	// PurgeExpired deletes expired locks and reports how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	// Claim checks that holder owns a live lock on every seat and pins
	// those locks until at least now+hold, so none of them can expire or
	// change hands while the booking is written.  It returns
	// model.ErrLockNotHeld and changes nothing when any seat fails.
	Claim(ctx context.Context, showID, holder uint64, seats []model.SeatID, now time.Time, hold time.Duration) error
}

// BookingStore persists bookings and the show counter they drive.
type BookingStore interface {
	// BookedSeats returns the seats claimed by pending or confirmed
	// bookings of a show.
	BookedSeats(ctx context.Context, showID uint64) (map[model.SeatID]struct{}, error)
	// Create inserts b, claims its seats, increments the show counter and
	// drops b.UserID's locks on those seats held in the same storage, as
	// one unit.  A seat already claimed yields model.ErrSeatUnavailable and
	// an overfull show model.ErrShowFull; nothing is written in either
	// case.
	Create(ctx context.Context, b model.Booking) (model.Booking, error)
	// Get returns a booking by id or model.ErrBookingNotFound.
	Get(ctx context.Context, id uint64) (model.Booking, error)
	// ListByUser returns a user's bookings, newest first.
	ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	// FindPendingPayment returns the booking with payment status pending
	// that m selects, or model.ErrBookingNotFound.
	FindPendingPayment(ctx context.Context, m model.PaymentMatch) (model.Booking, error)
	// Transition applies t to booking id when t.Allows the stored row.
	// applied is false, with a nil error, when the guard did not hold.
	Transition(ctx context.Context, id uint64, t model.Transition) (b model.Booking, applied bool, err error)
}

// ShowCatalog is the read side of the external show catalog.
type ShowCatalog interface {
	// GetShow returns a show or model.ErrShowNotFound.
	GetShow(ctx context.Context, id uint64) (model.Show, error)
}

// Booking lifecycle events published to Notifier.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventPaymentFailed    = "booking.payment_failed"
)

// Notifier receives booking lifecycle events.  Delivery is best effort.
type Notifier interface {
	BookingChanged(ctx context.Context, event string, b model.Booking) error
}

type nopNotifier struct{}

func (nopNotifier) BookingChanged(context.Context, string, model.Booking) error { return nil }
