package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

func TestCoordinator_LockSeat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("grants lock with default ttl", func(t *testing.T) {
		f := newFixture(t)
		l, err := f.coord.LockSeat(ctx, 1, "a1", 7)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if l.SeatID != "A1" || l.HolderID != 7 {
			t.Fatalf("unexpected lock %+v", l)
		}
		if !l.ExpiresAt.Equal(t0.Add(10 * time.Minute)) {
			t.Fatalf("expected expiry %v, got %v", t0.Add(10*time.Minute), l.ExpiresAt)
		}
	})

	t.Run("second user gets AlreadyLocked", func(t *testing.T) {
		f := newFixture(t)
		f.lock(t, 1, "A1")
		if _, err := f.coord.LockSeat(ctx, 1, "A1", 2); !errors.Is(err, model.ErrAlreadyLocked) {
			t.Fatalf("expected ErrAlreadyLocked, got %v", err)
		}
		if _, err := f.coord.LockSeat(ctx, 1, "A1", 1); !errors.Is(err, model.ErrAlreadyLocked) {
			t.Fatalf("expected ErrAlreadyLocked for own lock, got %v", err)
		}
	})

	t.Run("signed column is not a second seat", func(t *testing.T) {
		f := newFixture(t)
		f.lock(t, 1, "A1")
		for _, alias := range []string{"A+1", "A01", "a+001"} {
			if _, err := f.coord.LockSeat(ctx, 1, alias, 2); !errors.Is(err, model.ErrInvalidSeat) {
				t.Fatalf("expected ErrInvalidSeat for %q, got %v", alias, err)
			}
		}
		if _, err := f.commit.Commit(ctx, CommitInput{ShowID: 1, UserID: 2, Seats: []string{"A+1"}, PaymentMethod: "cash"}); !errors.Is(err, model.ErrInvalidSeat) {
			t.Fatalf("expected ErrInvalidSeat on commit, got %v", err)
		}
		if f.store.LockCount() != 1 {
			t.Fatalf("expected only the A1 lock, got %d", f.store.LockCount())
		}
	})

	t.Run("user may hold several seats", func(t *testing.T) {
		f := newFixture(t)
		f.lock(t, 1, "A1", "A2", "B7")
		mine, err := f.coord.MyLocks(ctx, 1, 1)
		if err != nil {
			t.Fatalf("my locks: %v", err)
		}
		if len(mine) != 3 {
			t.Fatalf("expected 3 locks, got %d", len(mine))
		}
	})

	t.Run("booked seat is unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.lock(t, 1, "A1")
		if _, err := f.commit.Commit(ctx, CommitInput{ShowID: 1, UserID: 1, Seats: []string{"A1"}, PaymentMethod: "cash"}); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if _, err := f.coord.LockSeat(ctx, 1, "A1", 2); !errors.Is(err, model.ErrSeatUnavailable) {
			t.Fatalf("expected ErrSeatUnavailable, got %v", err)
		}
		if f.store.LockCount() != 0 {
			t.Fatalf("expected no lock to be written, got %d", f.store.LockCount())
		}
	})

	t.Run("expired lock can be taken", func(t *testing.T) {
		f := newFixture(t)
		f.lock(t, 1, "A1")
		f.clock.Advance(10 * time.Minute)
		l, err := f.coord.LockSeat(ctx, 1, "A1", 2)
		if err != nil {
			t.Fatalf("expected takeover, got %v", err)
		}
		if l.HolderID != 2 {
			t.Fatalf("expected holder 2, got %d", l.HolderID)
		}
	})

	t.Run("validation and show state", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.coord.LockSeat(ctx, 1, "Z99", 1); !errors.Is(err, model.ErrInvalidSeat) {
			t.Fatalf("expected ErrInvalidSeat, got %v", err)
		}
		if _, err := f.coord.LockSeat(ctx, 42, "A1", 1); !errors.Is(err, model.ErrShowNotFound) {
			t.Fatalf("expected ErrShowNotFound, got %v", err)
		}
		f.clock.Advance(24 * time.Hour)
		if _, err := f.coord.LockSeat(ctx, 1, "A1", 1); !errors.Is(err, model.ErrShowStarted) {
			t.Fatalf("expected ErrShowStarted, got %v", err)
		}
	})

	t.Run("inactive show is not found", func(t *testing.T) {
		f := newFixture(t)
		show, _ := f.store.GetShow(ctx, 1)
		show.IsActive = false
		f.store.AddShow(show)
		if _, err := f.coord.LockSeat(ctx, 1, "A1", 1); !errors.Is(err, model.ErrShowNotFound) {
			t.Fatalf("expected ErrShowNotFound, got %v", err)
		}
	})
}

func TestCoordinator_ConcurrentLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const n = 64
	var granted, conflicts int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(holder uint64) {
			defer wg.Done()
			<-start
			_, err := f.coord.LockSeat(context.Background(), 1, "E5", holder)
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
	close(start)
	wg.Wait()
	if granted != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 grant and %d conflicts, got %d/%d", n-1, granted, conflicts)
	}
}

func TestCoordinator_Unlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.lock(t, 1, "A1", "A2")

	if err := f.coord.UnlockSeat(ctx, 1, "A1", 2); !errors.Is(err, model.ErrLockNotFound) {
		t.Fatalf("expected ErrLockNotFound, got %v", err)
	}
	statuses, _ := f.avail.SeatStatuses(ctx, 1)
	if statuses[0].Status != model.SeatLocked || *statuses[0].HolderID != 1 {
		t.Fatalf("expected holder lock untouched, got %+v", statuses[0])
	}
	if err := f.coord.UnlockSeat(ctx, 1, "A3", 1); !errors.Is(err, model.ErrLockNotFound) {
		t.Fatalf("expected ErrLockNotFound for unlocked seat, got %v", err)
	}
	if err := f.coord.UnlockSeat(ctx, 1, "a1", 1); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	n, err := f.coord.ReleaseAll(ctx, 1, 1)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 released, got %d (%v)", n, err)
	}
	mine, _ := f.coord.MyLocks(ctx, 1, 1)
	if len(mine) != 0 {
		t.Fatalf("expected no locks, got %+v", mine)
	}
}
