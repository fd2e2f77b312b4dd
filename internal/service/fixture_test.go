package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/repository/memory"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type recordedEvent struct {
	event   string
	booking model.Booking
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) BookingChanged(_ context.Context, event string, b model.Booking) error {
	n.mu.Lock()
	n.events = append(n.events, recordedEvent{event: event, booking: b})
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.event
	}
	return out
}

type fixture struct {
	store    *memory.Store
	clock    *clock.Manual
	notifier *recordingNotifier
	coord    *Coordinator
	avail    *Availability
	commit   *Committer
	recon    *Reconciler
}

// newFixture builds the services over one memory store.  Show 1 starts a
// day after t0, costs 200 and seats 140.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.AddShow(model.Show{
		ID: 1, MovieTitle: "Inception", Theater: "Grand", Screen: "1",
		StartsAt: t0.Add(24 * time.Hour), EndsAt: t0.Add(26 * time.Hour),
		PriceCents: 200, TotalSeats: 140, IsActive: true,
	})
	clk := clock.NewManual(t0)
	n := &recordingNotifier{}
	opts := []Option{
		WithLogger(logger.Discard()),
		WithNotifier(n),
		WithRetry(Backoff{Attempts: 3, Base: time.Millisecond}),
	}
	return &fixture{
		store:    store,
		clock:    clk,
		notifier: n,
		coord:    NewCoordinator(store, store, store, clk, opts...),
		avail:    NewAvailability(store, store, store, clk, opts...),
		commit:   NewCommitter(store, store, store, clk, opts...),
		recon:    NewReconciler(store, clk, opts...),
	}
}

func (f *fixture) lock(t *testing.T, holder uint64, seats ...string) {
	t.Helper()
	for _, s := range seats {
		if _, err := f.coord.LockSeat(context.Background(), 1, s, holder); err != nil {
			t.Fatalf("lock %s for %d: %v", s, holder, err)
		}
	}
}

func (f *fixture) bookedSeats(t *testing.T) uint32 {
	t.Helper()
	show, err := f.store.GetShow(context.Background(), 1)
	if err != nil {
		t.Fatalf("get show: %v", err)
	}
	return show.BookedSeats
}

// newFixtureWith rebuilds f's services on top of locks, keeping the store
// and clock.
func newFixtureWith(t *testing.T, f *fixture, locks LockStore) *fixture {
	t.Helper()
	opts := []Option{
		WithLogger(f.commit.cfg.logger),
		WithNotifier(f.notifier),
		WithRetry(Backoff{Attempts: 3, Base: time.Millisecond}),
	}
	return &fixture{
		store:    f.store,
		clock:    f.clock,
		notifier: f.notifier,
		coord:    NewCoordinator(locks, f.store, f.store, f.clock, opts...),
		avail:    NewAvailability(locks, f.store, f.store, f.clock, opts...),
		commit:   NewCommitter(locks, f.store, f.store, f.clock, opts...),
		recon:    NewReconciler(f.store, f.clock, opts...),
	}
}
