package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
)

// Reaper periodically deletes expired locks.  Reads already ignore expired
// locks, so the reaper only keeps storage small.
type Reaper struct {
	locks    LockStore
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper returns a Reaper that sweeps every interval.
func NewReaper(locks LockStore, clk clock.Clock, interval time.Duration, opts ...Option) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{locks: locks, clock: clk, interval: interval, logger: newSettings(opts).logger}
}

// Sweep runs one purge and returns how many locks it removed.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.locks.PurgeExpired(ctx, r.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.DebugContext(ctx, "expired seat locks purged", slog.Int64("count", n))
	}
	return n, nil
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "seat lock purge failed", slog.String("error", err.Error()))
			}
		}
	}
}
