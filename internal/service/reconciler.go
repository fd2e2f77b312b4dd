package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// PaymentOutcome is what the payment provider reports.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
)

// PaymentEvent is a provider callback, from the webhook or the queue.
type PaymentEvent struct {
	Outcome    PaymentOutcome
	PaymentRef string
	ShowID     uint64
	UserID     uint64
	Seats      []string
}

// Result says what Apply did with an event.
type Result string

const (
	ResultNoop      Result = "noop"
	ResultConfirmed Result = "confirmed"
	ResultFailed    Result = "failed"
)

// Reconciler applies payment outcomes to pending bookings.
type Reconciler struct {
	bookings BookingStore
	clock    clock.Clock
	cfg      settings
}

// NewReconciler wires a Reconciler.
func NewReconciler(bookings BookingStore, clk clock.Clock, opts ...Option) *Reconciler {
	return &Reconciler{bookings: bookings, clock: clk, cfg: newSettings(opts)}
}

// Apply settles the pending booking ev refers to.  A success confirms it
// and marks it paid.  A failure cancels it, marks the payment failed and
// returns its seats to the pool.  Events that match no pending booking,
// including redeliveries of an event already applied, are a no-op.
func (r *Reconciler) Apply(ctx context.Context, ev PaymentEvent) (Result, error) {
	outcome := PaymentOutcome(strings.ToLower(strings.TrimSpace(string(ev.Outcome))))
	if outcome != PaymentSucceeded && outcome != PaymentFailed {
		return ResultNoop, fmt.Errorf("%w: unknown outcome %q", model.ErrInvalidPaymentEvent, ev.Outcome)
	}
	ref := strings.TrimSpace(ev.PaymentRef)
	match := model.PaymentMatch{Ref: ref, UserID: ev.UserID, ShowID: ev.ShowID}
	if len(ev.Seats) > 0 {
		seats, err := r.cfg.grid.ParseAll(ev.Seats)
		if err != nil {
			return ResultNoop, fmt.Errorf("%w: %v", model.ErrInvalidPaymentEvent, err)
		}
		match.Seats = seats
	}
	if ref == "" && !match.BySeats() {
		return ResultNoop, fmt.Errorf("%w: need payment_ref or user, show and seats", model.ErrInvalidPaymentEvent)
	}

	b, err := r.bookings.FindPendingPayment(ctx, match)
	if errors.Is(err, model.ErrBookingNotFound) {
		r.cfg.logger.InfoContext(ctx, "payment event matched no pending booking",
			slog.String("outcome", string(outcome)), slog.String("payment_ref", ref))
		return ResultNoop, nil
	}
	if err != nil {
		return ResultNoop, err
	}

	pending := model.PaymentPending
	t := model.Transition{
		From:           []model.BookingStatus{model.BookingPending, model.BookingConfirmed},
		RequirePayment: &pending,
		At:             r.clock.Now(),
	}
	if ref != "" {
		t.PaymentRef = &ref
	}
	result, event := ResultConfirmed, EventBookingConfirmed
	if outcome == PaymentSucceeded {
		paid := model.PaymentPaid
		t.To, t.ToPayment = model.BookingConfirmed, &paid
	} else {
		failed := model.PaymentFailed
		t.To, t.ToPayment, t.ReleaseSeats = model.BookingCancelled, &failed, true
		result, event = ResultFailed, EventPaymentFailed
	}

	out, applied, err := r.bookings.Transition(ctx, b.ID, t)
	if err != nil {
		return ResultNoop, err
	}
	if !applied {
		return ResultNoop, nil
	}
	r.cfg.logger.InfoContext(ctx, "payment applied",
		slog.Uint64("booking_id", out.ID),
		slog.String("result", string(result)),
		slog.String("payment_ref", ref),
	)
	notify(context.WithoutCancel(ctx), r.cfg, event, out)
	return result, nil
}
