package service

import (
	"log/slog"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

type settings struct {
	lockTTL      time.Duration
	cancelCutoff time.Duration
	maxSeats     int
	grid         model.SeatGrid
	retry        Backoff
	logger       *slog.Logger
	notifier     Notifier
}

func defaultSettings() settings {
	return settings{
		lockTTL:      model.DefaultLockTTL,
		cancelCutoff: 2 * time.Hour,
		maxSeats:     model.MaxSeatsPerBooking,
		grid:         model.DefaultSeatGrid,
		retry:        Backoff{Attempts: 5, Base: 100 * time.Millisecond, Max: 2 * time.Second},
		logger:       slog.Default(),
		notifier:     nopNotifier{},
	}
}

func newSettings(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option overrides a default shared by the reservation services.
type Option func(*settings)

// WithLockTTL sets how long a new seat lock lives.
func WithLockTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

// WithCancelCutoff sets how close to show time a booking can no longer be
// cancelled.
func WithCancelCutoff(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.cancelCutoff = d
		}
	}
}

// WithMaxSeats caps the number of seats in one booking.
func WithMaxSeats(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxSeats = n
		}
	}
}

// WithSeatGrid sets the seating layout used to validate seat IDs.
func WithSeatGrid(g model.SeatGrid) Option {
	return func(s *settings) {
		if g.Rows > 0 && g.Cols > 0 {
			s.grid = g
		}
	}
}

// WithRetry sets the backoff used for post-commit cleanup.
func WithRetry(b Backoff) Option {
	return func(s *settings) {
		if b.Attempts > 0 {
			s.retry = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier sets where booking lifecycle events go.
func WithNotifier(n Notifier) Option {
	return func(s *settings) {
		if n != nil {
			s.notifier = n
		}
	}
}
