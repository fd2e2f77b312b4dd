package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// SeatLockRepo stores seat locks in the seat_locks table.  The unique key
// on (show_id, seat_code) makes Acquire atomic across every server
// instance sharing the database.  Rows past their expires_at stay in the
// table until Acquire replaces them or PurgeExpired runs, but every query
// here filters them out.  The connection must not set CLIENT_FOUND_ROWS,
// which is the driver default.
type SeatLockRepo struct {
	db *sql.DB
}

// NewSeatLockRepo returns a new SeatLockRepo bound to the provided database.
func NewSeatLockRepo(db *sql.DB) *SeatLockRepo { return &SeatLockRepo{db: db} }

// Acquire grants holder a lock on seat with one conditional upsert.  A
// missing row is inserted; an expired row is taken over in place; a live
// row is left untouched.  The insert is skipped when an active booking
// claims the seat, and the affected-row count tells the cases apart.
func (r *SeatLockRepo) Acquire(ctx context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time, ttl time.Duration) (model.SeatLock, error) {
	lock := model.SeatLock{
		ShowID:    showID,
		SeatID:    seat,
		HolderID:  holder,
		ExpiresAt: now.Add(ttl).UTC(),
		CreatedAt: now.UTC(),
	}
	at := now.UTC()
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		// expires_at is assigned last so the earlier IFs still see the old
		// value.
		res, err := tx.ExecContext(ctx,
			`INSERT INTO seat_locks (show_id, seat_code, user_id, expires_at, created_at)
			 SELECT ?, ?, ?, ?, ? FROM DUAL
			 WHERE NOT EXISTS (SELECT 1 FROM booking_seats WHERE show_id = ? AND seat_code = ?)
			 ON DUPLICATE KEY UPDATE
			   user_id    = IF(expires_at <= ?, ?, user_id),
			   created_at = IF(expires_at <= ?, ?, created_at),
			   expires_at = IF(expires_at <= ?, ?, expires_at)`,
			showID, string(seat), holder, lock.ExpiresAt, lock.CreatedAt, showID, string(seat),
			at, holder,
			at, lock.CreatedAt,
			at, lock.ExpiresAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		// 1: inserted, 2: expired row replaced, 0: live lock kept or
		// seat booked.
		if n > 0 {
			return nil
		}
		var booked int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM booking_seats WHERE show_id = ? AND seat_code = ?`,
			showID, string(seat),
		).Scan(&booked); err != nil {
			return err
		}
		if booked > 0 {
			return model.ErrAlreadyBooked
		}
		return model.ErrAlreadyLocked
	})
	if err != nil {
		return model.SeatLock{}, err
	}
	return lock, nil
}

// Release deletes holder's live lock on seat.  It returns
// model.ErrLockNotFound when there is no such lock, which includes a lock
// owned by someone else and one that already expired.
func (r *SeatLockRepo) Release(ctx context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_locks WHERE show_id = ? AND seat_code = ? AND user_id = ? AND expires_at > ?`,
		showID, string(seat), holder, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("release seat lock: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrLockNotFound
	}
	return nil
}

// ReleaseHeld removes holder's locks for a show.  A nil seats slice removes
// all of them; otherwise only the named seats are touched.  Expired rows
// are removed too since they are garbage either way.
func (r *SeatLockRepo) ReleaseHeld(ctx context.Context, showID, holder uint64, seats []model.SeatID) (int, error) {
	q := `DELETE FROM seat_locks WHERE show_id = ? AND user_id = ?`
	args := []interface{}{showID, holder}
	if seats != nil {
		if len(seats) == 0 {
			return 0, nil
		}
		q += ` AND seat_code IN (` + placeholders(len(seats)) + `)`
		for _, s := range seats {
			args = append(args, string(s))
		}
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("release held seats: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ActiveByShow returns the live locks for a show ordered by seat code.
func (r *SeatLockRepo) ActiveByShow(ctx context.Context, showID uint64, now time.Time) ([]model.SeatLock, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT show_id, seat_code, user_id, expires_at, created_at
		 FROM seat_locks
		 WHERE show_id = ? AND expires_at > ?
		 ORDER BY seat_code`,
		showID, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list seat locks: %w", classify(err))
	}
	defer rows.Close()
	var locks []model.SeatLock
	for rows.Next() {
		var l model.SeatLock
		var code string
		if err := rows.Scan(&l.ShowID, &code, &l.HolderID, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.SeatID = model.SeatID(code)
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return locks, nil
}

// Claim row-locks holder's live locks on seats and pushes their expiry to
// at least now+hold.  Missing, foreign or expired locks yield
// model.ErrLockNotHeld and the transaction is rolled back.
func (r *SeatLockRepo) Claim(ctx context.Context, showID, holder uint64, seats []model.SeatID, now time.Time, hold time.Duration) error {
	if len(seats) == 0 {
		return model.ErrLockNotHeld
	}
	in := placeholders(len(seats))
	args := []interface{}{showID, holder, now.UTC()}
	for _, s := range seats {
		args = append(args, string(s))
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT seat_code FROM seat_locks
			 WHERE show_id = ? AND user_id = ? AND expires_at > ? AND seat_code IN (`+in+`)
			 FOR UPDATE`,
			args...,
		)
		if err != nil {
			return err
		}
		held := 0
		for rows.Next() {
			held++
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if held != len(seats) {
			return model.ErrLockNotHeld
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE seat_locks SET expires_at = GREATEST(expires_at, ?)
			 WHERE show_id = ? AND user_id = ? AND expires_at > ? AND seat_code IN (`+in+`)`,
			append([]interface{}{now.Add(hold).UTC()}, args...)...,
		)
		return err
	})
}

// PurgeExpired deletes every lock whose expires_at is at or before now.
func (r *SeatLockRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM seat_locks WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge seat locks: %w", classify(err))
	}
	return res.RowsAffected()
}
