package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// postCommitTimeout bounds the cleanup that runs after a booking is
// durable.  The cleanup is detached from the request context so a client
// hanging up does not leave its locks behind.
const postCommitTimeout = 10 * time.Second

// commitHold is how long Claim pins the requester's locks.  It outlasts
// the request timeout, so the locks cannot lapse while the booking is
// written.
const commitHold = 30 * time.Second

// CommitInput is a request to turn locked seats into a booking.
type CommitInput struct {
	ShowID        uint64
	UserID        uint64
	Seats         []string
	PaymentMethod string
	PaymentRef    string
}

// Committer turns a user's locks into bookings and handles their
// cancellation.
type Committer struct {
	locks    LockStore
	bookings BookingStore
	shows    ShowCatalog
	clock    clock.Clock
	cfg      settings
}

// NewCommitter wires a Committer.
func NewCommitter(locks LockStore, bookings BookingStore, shows ShowCatalog, clk clock.Clock, opts ...Option) *Committer {
	return &Committer{locks: locks, bookings: bookings, shows: shows, clock: clk, cfg: newSettings(opts)}
}

// Commit books the requested seats for in.UserID.  Every seat must be
// unbooked and carry a live lock owned by the user; the first seat that
// fails either check aborts the commit before anything is written.  The
// booking row, its seat claims and the show counter are written as one
// unit by the booking store, after the locks are claimed once more at the
// moment of the write.  The consumed locks are released afterwards.
func (c *Committer) Commit(ctx context.Context, in CommitInput) (model.Booking, error) {
	if n := len(in.Seats); n < 1 || n > c.cfg.maxSeats {
		return model.Booking{}, fmt.Errorf("%w: got %d, want 1 to %d", model.ErrTooManySeats, n, c.cfg.maxSeats)
	}
	seats, err := c.cfg.grid.ParseAll(in.Seats)
	if err != nil {
		return model.Booking{}, err
	}
	method := model.PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	if !method.Valid() {
		return model.Booking{}, fmt.Errorf("%w: %q", model.ErrInvalidPaymentMethod, in.PaymentMethod)
	}
	ref := strings.TrimSpace(in.PaymentRef)
	if method == model.PaymentOnline && ref == "" {
		return model.Booking{}, model.ErrPaymentRefRequired
	}

	now := c.clock.Now()
	show, err := bookableShow(ctx, c.shows, in.ShowID, now)
	if err != nil {
		return model.Booking{}, err
	}
	booked, err := c.bookings.BookedSeats(ctx, in.ShowID)
	if err != nil {
		return model.Booking{}, err
	}
	live, err := c.locks.ActiveByShow(ctx, in.ShowID, now)
	if err != nil {
		return model.Booking{}, err
	}
	holders := make(map[model.SeatID]uint64, len(live))
	for _, l := range live {
		holders[l.SeatID] = l.HolderID
	}
	for _, seat := range seats {
		if _, ok := booked[seat]; ok {
			return model.Booking{}, fmt.Errorf("%w: %s", model.ErrSeatUnavailable, seat)
		}
		if h, ok := holders[seat]; !ok || h != in.UserID {
			return model.Booking{}, fmt.Errorf("%w: %s", model.ErrLockNotHeld, seat)
		}
	}

	status, payStatus := method.InitialStatus()
	b := model.Booking{
		Reference:        model.NewBookingReference(),
		UserID:           in.UserID,
		ShowID:           show.ID,
		MovieTitle:       show.MovieTitle,
		Theater:          show.Theater,
		Screen:           show.Screen,
		ShowTime:         show.StartsAt,
		Seats:            seats,
		TotalAmountCents: uint64(len(seats)) * uint64(show.PriceCents),
		Status:           status,
		PaymentStatus:    payStatus,
		PaymentMethod:    method,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ref != "" {
		b.PaymentRef = &ref
	}
	if err := c.locks.Claim(ctx, show.ID, in.UserID, seats, c.clock.Now(), commitHold); err != nil {
		return model.Booking{}, err
	}
	created, err := c.bookings.Create(ctx, b)
	if err != nil {
		return model.Booking{}, err
	}

	c.cfg.logger.InfoContext(ctx, "booking created",
		slog.Uint64("booking_id", created.ID),
		slog.String("reference", created.Reference),
		slog.Uint64("show_id", created.ShowID),
		slog.Uint64("user_id", created.UserID),
		slog.Int("seats", len(created.Seats)),
		slog.String("status", string(created.Status)),
	)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()
	c.afterCommit(cleanupCtx, created)
	notify(cleanupCtx, c.cfg, EventBookingCreated, created)
	return created, nil
}

// afterCommit releases the consumed locks.  Stores sharing the booking
// storage already dropped them inside Create; this covers the others.
// Failures are logged, not returned: the booking is already durable and
// outranks any lock left behind, which expires on its own.
func (c *Committer) afterCommit(ctx context.Context, b model.Booking) {
	err := retry(ctx, c.cfg.retry, func(ctx context.Context) error {
		_, err := c.locks.ReleaseHeld(ctx, b.ShowID, b.UserID, b.Seats)
		return err
	})
	if err != nil {
		c.cfg.logger.WarnContext(ctx, "release locks after booking failed",
			slog.Uint64("booking_id", b.ID), slog.String("error", err.Error()))
	}
}

// Cancel cancels a user's booking while the show is more than the cancel
// cutoff away.  Missing, foreign and already cancelled bookings all yield
// model.ErrBookingNotFound.
func (c *Committer) Cancel(ctx context.Context, bookingID, userID uint64) (model.Booking, error) {
	b, err := c.Get(ctx, bookingID, userID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.BookingCancelled {
		return model.Booking{}, model.ErrBookingNotFound
	}
	now := c.clock.Now()
	if b.ShowTime.Sub(now) <= c.cfg.cancelCutoff {
		return model.Booking{}, model.ErrCancellationWindowClosed
	}
	out, applied, err := c.bookings.Transition(ctx, b.ID, model.Transition{
		From:         []model.BookingStatus{model.BookingPending, model.BookingConfirmed},
		To:           model.BookingCancelled,
		ReleaseSeats: true,
		At:           now,
	})
	if err != nil {
		return model.Booking{}, err
	}
	if !applied {
		return model.Booking{}, model.ErrBookingNotFound
	}
	c.cfg.logger.InfoContext(ctx, "booking cancelled",
		slog.Uint64("booking_id", out.ID),
		slog.Uint64("show_id", out.ShowID),
		slog.Uint64("user_id", out.UserID),
	)
	notify(context.WithoutCancel(ctx), c.cfg, EventBookingCancelled, out)
	return out, nil
}

// Get returns one of userID's bookings.
func (c *Committer) Get(ctx context.Context, bookingID, userID uint64) (model.Booking, error) {
	b, err := c.bookings.Get(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.UserID != userID {
		return model.Booking{}, model.ErrBookingNotFound
	}
	return b, nil
}

// List returns userID's bookings, newest first.
func (c *Committer) List(ctx context.Context, userID uint64) ([]model.Booking, error) {
	list, err := c.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Booking{}
	}
	return list, nil
}

func notify(ctx context.Context, cfg settings, event string, b model.Booking) {
	if err := cfg.notifier.BookingChanged(ctx, event, b); err != nil {
		cfg.logger.WarnContext(ctx, "publish booking event failed",
			slog.String("event", event),
			slog.Uint64("booking_id", b.ID),
			slog.String("error", err.Error()),
		)
	}
}
