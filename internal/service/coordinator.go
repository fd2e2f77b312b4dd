package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// Coordinator handles a user's seat selection: locking and unlocking
// single seats and listing what the user currently holds.  Conflicts are
// reported immediately and never retried.
type Coordinator struct {
	locks    LockStore
	bookings BookingStore
	shows    ShowCatalog
	clock    clock.Clock
	cfg      settings
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(locks LockStore, bookings BookingStore, shows ShowCatalog, clk clock.Clock, opts ...Option) *Coordinator {
	return &Coordinator{
		locks:    locks,
		bookings: bookings,
		shows:    shows,
		clock:    clk,
		cfg:      newSettings(opts),
	}
}

// LockSeat locks one seat for holder.  A seat claimed by an active booking
// is reported as model.ErrSeatUnavailable; one locked by anybody,
// including holder, as model.ErrAlreadyLocked.
func (c *Coordinator) LockSeat(ctx context.Context, showID uint64, rawSeat string, holder uint64) (model.SeatLock, error) {
	seat, err := c.cfg.grid.Parse(rawSeat)
	if err != nil {
		return model.SeatLock{}, err
	}
	now := c.clock.Now()
	if _, err := bookableShow(ctx, c.shows, showID, now); err != nil {
		return model.SeatLock{}, err
	}
	booked, err := c.bookings.BookedSeats(ctx, showID)
	if err != nil {
		return model.SeatLock{}, err
	}
	if _, ok := booked[seat]; ok {
		return model.SeatLock{}, fmt.Errorf("%w: %s", model.ErrSeatUnavailable, seat)
	}
	lock, err := c.locks.Acquire(ctx, showID, seat, holder, now, c.cfg.lockTTL)
	if errors.Is(err, model.ErrAlreadyBooked) {
		return model.SeatLock{}, fmt.Errorf("%w: %s", model.ErrSeatUnavailable, seat)
	}
	if err != nil {
		return model.SeatLock{}, err
	}
	c.cfg.logger.DebugContext(ctx, "seat locked",
		slog.Uint64("show_id", showID),
		slog.String("seat_id", string(seat)),
		slog.Uint64("user_id", holder),
		slog.Time("expires_at", lock.ExpiresAt),
	)
	return lock, nil
}

// UnlockSeat releases holder's lock on a seat.  It returns
// model.ErrLockNotFound when holder has no live lock on it.
func (c *Coordinator) UnlockSeat(ctx context.Context, showID uint64, rawSeat string, holder uint64) error {
	seat, err := c.cfg.grid.Parse(rawSeat)
	if err != nil {
		return err
	}
	return c.locks.Release(ctx, showID, seat, holder, c.clock.Now())
}

// ReleaseAll drops every lock holder has on a show.
func (c *Coordinator) ReleaseAll(ctx context.Context, showID, holder uint64) (int, error) {
	return c.locks.ReleaseHeld(ctx, showID, holder, nil)
}

// MyLocks lists holder's live locks on a show.
func (c *Coordinator) MyLocks(ctx context.Context, showID, holder uint64) ([]model.SeatLock, error) {
	all, err := c.locks.ActiveByShow(ctx, showID, c.clock.Now())
	if err != nil {
		return nil, err
	}
	mine := make([]model.SeatLock, 0, len(all))
	for _, l := range all {
		if l.HolderID == holder {
			mine = append(mine, l)
		}
	}
	return mine, nil
}
