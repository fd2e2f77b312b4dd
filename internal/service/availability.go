package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// Availability builds the per-seat status view of a show.  Every call
// reads storage afresh.
type Availability struct {
	locks    LockStore
	bookings BookingStore
	shows    ShowCatalog
	clock    clock.Clock
	cfg      settings
}

// NewAvailability wires an Availability view.
func NewAvailability(locks LockStore, bookings BookingStore, shows ShowCatalog, clk clock.Clock, opts ...Option) *Availability {
	return &Availability{locks: locks, bookings: bookings, shows: shows, clock: clk, cfg: newSettings(opts)}
}

// SeatStatuses returns one entry per grid seat in row order.  Booked
// outranks locked, so a stale lock on a booked seat is never shown.
func (a *Availability) SeatStatuses(ctx context.Context, showID uint64) ([]model.SeatStatus, error) {
	show, err := a.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	if !show.IsActive {
		return nil, model.ErrShowNotFound
	}
	booked, err := a.bookings.BookedSeats(ctx, showID)
	if err != nil {
		return nil, err
	}
	locks, err := a.locks.ActiveByShow(ctx, showID, a.clock.Now())
	if err != nil {
		return nil, err
	}
	locked := make(map[model.SeatID]model.SeatLock, len(locks))
	for _, l := range locks {
		locked[l.SeatID] = l
	}
	seats := a.cfg.grid.Seats()
	out := make([]model.SeatStatus, 0, len(seats))
	for _, id := range seats {
		st := model.SeatStatus{SeatID: id, Status: model.SeatAvailable}
		if _, ok := booked[id]; ok {
			st.Status = model.SeatBooked
		} else if l, ok := locked[id]; ok {
			holder := l.HolderID
			until := l.ExpiresAt.UTC().Format(time.RFC3339)
			st.Status = model.SeatLocked
			st.HolderID = &holder
			st.LockedUntil = &until
		}
		out = append(out, st)
	}
	return out, nil
}

// bookableShow loads a show that can still take locks and bookings.
func bookableShow(ctx context.Context, shows ShowCatalog, showID uint64, now time.Time) (model.Show, error) {
	show, err := shows.GetShow(ctx, showID)
	if err != nil {
		return model.Show{}, err
	}
	if !show.IsActive {
		return model.Show{}, model.ErrShowNotFound
	}
	if !show.StartsAt.After(now) {
		return model.Show{}, model.ErrShowStarted
	}
	return show, nil
}
