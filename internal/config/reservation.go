package config

import (
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// ReservationConfig tunes the seat locking and booking rules.
type ReservationConfig struct {
	LockTTL             time.Duration // LOCK_TTL
	CancelCutoff        time.Duration // CANCEL_CUTOFF
	MaxSeatsPerBooking  int           // MAX_SEATS_PER_BOOKING
	Grid                model.SeatGrid
	ReapInterval        time.Duration // LOCK_REAP_INTERVAL
	CommitRetryAttempts int           // COMMIT_RETRY_ATTEMPTS
	CommitRetryBase     time.Duration // COMMIT_RETRY_BASE
}

// LoadReservationConfig reads the reservation settings, falling back to
// defaults for unset or unparsable values and clamping nonsensical ones.
func LoadReservationConfig() ReservationConfig {
	c := ReservationConfig{
		LockTTL:            envDur("LOCK_TTL", model.DefaultLockTTL),
		CancelCutoff:       envDur("CANCEL_CUTOFF", 2*time.Hour),
		MaxSeatsPerBooking: envInt("MAX_SEATS_PER_BOOKING", model.MaxSeatsPerBooking),
		Grid: model.SeatGrid{
			Rows: envInt("SEAT_GRID_ROWS", model.DefaultSeatGrid.Rows),
			Cols: envInt("SEAT_GRID_COLS", model.DefaultSeatGrid.Cols),
		},
		ReapInterval:        envDur("LOCK_REAP_INTERVAL", time.Minute),
		CommitRetryAttempts: envInt("COMMIT_RETRY_ATTEMPTS", 5),
		CommitRetryBase:     envDur("COMMIT_RETRY_BASE", 100*time.Millisecond),
	}
	if c.LockTTL <= 0 {
		c.LockTTL = model.DefaultLockTTL
	}
	if c.CancelCutoff < 0 {
		c.CancelCutoff = 0
	}
	if c.MaxSeatsPerBooking < 1 {
		c.MaxSeatsPerBooking = model.MaxSeatsPerBooking
	}
	if c.Grid.Rows < 1 || c.Grid.Rows > 26 {
		c.Grid.Rows = model.DefaultSeatGrid.Rows
	}
	if c.Grid.Cols < 1 {
		c.Grid.Cols = model.DefaultSeatGrid.Cols
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.CommitRetryAttempts < 1 {
		c.CommitRetryAttempts = 1
	}
	if c.CommitRetryBase <= 0 {
		c.CommitRetryBase = 100 * time.Millisecond
	}
	return c
}
