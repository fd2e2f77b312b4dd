package model

import "errors"

// Validation errors: rejected before touching storage.
var (
	ErrInvalidSeat          = errors.New("invalid seat id")
	ErrTooManySeats         = errors.New("invalid number of seats")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrPaymentRefRequired   = errors.New("payment_ref is required for online payments")
	ErrInvalidPaymentEvent  = errors.New("invalid payment event")
)

// Conflict errors: expected under contention, no side effects, never
// retried by the core.
var (
	ErrSeatUnavailable = errors.New("seat is already booked")
	ErrAlreadyLocked   = errors.New("seat is already locked")
	ErrAlreadyBooked   = errors.New("seat is already booked")
	ErrLockNotHeld     = errors.New("seat is not locked by you or the lock expired")
	ErrShowFull        = errors.New("show has no remaining capacity")
	ErrShowStarted     = errors.New("show has already started")
)

// Lookup and state-transition errors.
var (
	ErrShowNotFound             = errors.New("show not found")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrLockNotFound             = errors.New("seat lock not found or not owned by you")
	ErrCancellationWindowClosed = errors.New("cannot cancel a booking less than 2 hours before show time")
)

// ErrTransient marks storage failures that may succeed when retried, such
// as lock wait timeouts, deadlocks and dropped connections.
var ErrTransient = errors.New("transient storage failure")
