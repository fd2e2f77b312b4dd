package model

import "time"

// DefaultLockTTL bounds how long a seat stays locked without a booking.
const DefaultLockTTL = 10 * time.Minute

// SeatLock represents one user's temporary claim on one seat of one show.
// At most one live lock exists per (show, seat).  A lock whose ExpiresAt
// is not after the current time is treated as absent on every read path
// whether or not its row has been deleted yet.
//
// Fields:
//  ShowID    – show for which the seat is locked.
//  SeatID    – seat being locked.
//  HolderID  – user who holds the lock.
//  ExpiresAt – when the lock stops being honored.
//  CreatedAt – when the lock was granted.
type SeatLock struct {
	ShowID    uint64    // seat_locks.show_id
	SeatID    SeatID    // seat_locks.seat_code
	HolderID  uint64    // seat_locks.user_id
	ExpiresAt time.Time // seat_locks.expires_at
	CreatedAt time.Time // seat_locks.created_at
}

// LiveAt reports whether the lock is still honored at now.
func (l SeatLock) LiveAt(now time.Time) bool {
	return l.ExpiresAt.After(now)
}
