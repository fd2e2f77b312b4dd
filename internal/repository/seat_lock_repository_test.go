package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
	"github.com/iliyamo/cinema-seat-locking/internal/testutil"
)

func TestSeatLockRepo(t *testing.T) {
	db := testutil.NewTestDB(t)
	locks := repository.NewSeatLockRepo(db)
	bookings := repository.NewBookingRepo(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Acquire is exclusive under contention", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, db)
		show := testutil.InsertShow(t, ctx, db, now.Add(24*time.Hour), 140)

		var granted, conflicts int32
		var wg sync.WaitGroup
		for i := 1; i <= 16; i++ {
			wg.Add(1)
			go func(holder uint64) {
				defer wg.Done()
				_, err := locks.Acquire(ctx, show.ID, "A1", holder, now, time.Minute)
				switch {
				case err == nil:
					atomic.AddInt32(&granted, 1)
				case errors.Is(err, model.ErrAlreadyLocked):
					atomic.AddInt32(&conflicts, 1)
				default:
					t.Errorf("unexpected error %v", err)
				}
			}(uint64(i))
		}
		wg.Wait()
		if granted != 1 || conflicts != 15 {
			t.Fatalf("expected 1 grant and 15 conflicts, got %d/%d", granted, conflicts)
		}
		if n := testutil.CountRows(t, ctx, db, `SELECT COUNT(*) FROM seat_locks WHERE show_id = ?`, show.ID); n != 1 {
			t.Fatalf("expected 1 row, got %d", n)
		}
	})

	t.Run("expired lock is taken over", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, db)
		show := testutil.InsertShow(t, ctx, db, now.Add(24*time.Hour), 140)

		if _, err := locks.Acquire(ctx, show.ID, "B2", 1, now, time.Minute); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if _, err := locks.Acquire(ctx, show.ID, "B2", 2, now.Add(30*time.Second), time.Minute); !errors.Is(err, model.ErrAlreadyLocked) {
			t.Fatalf("expected ErrAlreadyLocked, got %v", err)
		}
		later := now.Add(2 * time.Minute)
		l, err := locks.Acquire(ctx, show.ID, "B2", 2, later, time.Minute)
		if err != nil {
			t.Fatalf("expected takeover, got %v", err)
		}
		live, err := locks.ActiveByShow(ctx, show.ID, later)
		if err != nil {
			t.Fatalf("active: %v", err)
		}
		if len(live) != 1 || live[0].HolderID != 2 || !live[0].ExpiresAt.Equal(l.ExpiresAt) {
			t.Fatalf("unexpected live locks %+v", live)
		}
	})

	t.Run("booked seat is rejected", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, db)
		show := testutil.InsertShow(t, ctx, db, now.Add(24*time.Hour), 140)

		_, err := bookings.Create(ctx, newBooking(show, 1, "C3"))
		if err != nil {
			t.Fatalf("create booking: %v", err)
		}
		if _, err := locks.Acquire(ctx, show.ID, "C3", 2, now, time.Minute); !errors.Is(err, model.ErrAlreadyBooked) {
			t.Fatalf("expected ErrAlreadyBooked, got %v", err)
		}
	})

	t.Run("Claim pins only fully held selections", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, db)
		show := testutil.InsertShow(t, ctx, db, now.Add(24*time.Hour), 140)

		if _, err := locks.Acquire(ctx, show.ID, "K1", 1, now, time.Minute); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if _, err := locks.Acquire(ctx, show.ID, "K2", 2, now, time.Minute); err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if err := locks.Claim(ctx, show.ID, 1, []model.SeatID{"K1", "K2"}, now, 30*time.Second); !errors.Is(err, model.ErrLockNotHeld) {
			t.Fatalf("expected ErrLockNotHeld for foreign seat, got %v", err)
		}
		if err := locks.Claim(ctx, show.ID, 1, []model.SeatID{"K1"}, now.Add(time.Minute), 30*time.Second); !errors.Is(err, model.ErrLockNotHeld) {
			t.Fatalf("expected ErrLockNotHeld for expired lock, got %v", err)
		}

		at := now.Add(50 * time.Second)
		if err := locks.Claim(ctx, show.ID, 1, []model.SeatID{"K1"}, at, 30*time.Second); err != nil {
			t.Fatalf("claim: %v", err)
		}
		live, _ := locks.ActiveByShow(ctx, show.ID, now.Add(70*time.Second))
		if len(live) != 1 || live[0].SeatID != "K1" || !live[0].ExpiresAt.Equal(at.Add(30*time.Second)) {
			t.Fatalf("expected K1 pinned to %v, got %+v", at.Add(30*time.Second), live)
		}
	})

	t.Run("Release, ReleaseHeld and PurgeExpired", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, db)
		show := testutil.InsertShow(t, ctx, db, now.Add(24*time.Hour), 140)

		for _, s := range []model.SeatID{"D1", "D2", "D3"} {
			if _, err := locks.Acquire(ctx, show.ID, s, 1, now, time.Minute); err != nil {
				t.Fatalf("acquire %s: %v", s, err)
			}
		}
		if _, err := locks.Acquire(ctx, show.ID, "E1", 2, now.Add(-time.Hour), time.Minute); err != nil {
			t.Fatalf("acquire stale: %v", err)
		}

		if err := locks.Release(ctx, show.ID, "D1", 2, now); !errors.Is(err, model.ErrLockNotFound) {
			t.Fatalf("expected ErrLockNotFound, got %v", err)
		}
		if err := locks.Release(ctx, show.ID, "D1", 1, now); err != nil {
			t.Fatalf("release: %v", err)
		}
		n, err := locks.ReleaseHeld(ctx, show.ID, 1, []model.SeatID{"D2"})
		if err != nil || n != 1 {
			t.Fatalf("expected 1 released, got %d (%v)", n, err)
		}
		live, _ := locks.ActiveByShow(ctx, show.ID, now)
		if len(live) != 1 || live[0].SeatID != "D3" {
			t.Fatalf("expected only D3 live, got %+v", live)
		}
		purged, err := locks.PurgeExpired(ctx, now)
		if err != nil || purged != 1 {
			t.Fatalf("expected 1 purged, got %d (%v)", purged, err)
		}
		n, err = locks.ReleaseHeld(ctx, show.ID, 1, nil)
		if err != nil || n != 1 {
			t.Fatalf("expected remaining lock released, got %d (%v)", n, err)
		}
	})
}

func newBooking(show model.Show, user uint64, seats ...model.SeatID) model.Booking {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return model.Booking{
		Reference:        model.NewBookingReference(),
		UserID:           user,
		ShowID:           show.ID,
		MovieTitle:       show.MovieTitle,
		Theater:          show.Theater,
		Screen:           show.Screen,
		ShowTime:         show.StartsAt,
		Seats:            seats,
		TotalAmountCents: uint64(len(seats)) * uint64(show.PriceCents),
		Status:           model.BookingPending,
		PaymentStatus:    model.PaymentPending,
		PaymentMethod:    model.PaymentCash,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
