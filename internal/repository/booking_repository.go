package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// BookingRepo persists bookings.  Each active booking owns one
// booking_seats row per seat; the unique (show_id, seat_code) key on that
// table is what keeps two pending or confirmed bookings from sharing a
// seat.  The shows.booked_seats counter moves in the same transaction as
// the rows it counts.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, booking_reference, user_id, show_id, movie_title, theater, screen, show_time,
	seats, total_amount_cents, status, payment_status, payment_method, payment_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	var seats string
	var ref sql.NullString
	err := row.Scan(
		&b.ID, &b.Reference, &b.UserID, &b.ShowID, &b.MovieTitle, &b.Theater, &b.Screen, &b.ShowTime,
		&seats, &b.TotalAmountCents, &b.Status, &b.PaymentStatus, &b.PaymentMethod, &ref,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Seats = model.SplitSeats(seats)
	if ref.Valid {
		s := ref.String
		b.PaymentRef = &s
	}
	return b, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// BookedSeats returns the seats claimed by active bookings of a show.
func (r *BookingRepo) BookedSeats(ctx context.Context, showID uint64) (map[model.SeatID]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seat_code FROM booking_seats WHERE show_id = ?`, showID)
	if err != nil {
		return nil, fmt.Errorf("booked seats: %w", classify(err))
	}
	defer rows.Close()
	out := make(map[model.SeatID]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out[model.SeatID(code)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Create inserts the booking, claims its seats, deletes the booker's
// locks on them and bumps the show counter in one transaction.  A seat already claimed by another active booking
// yields model.ErrSeatUnavailable; a counter that would pass total_seats,
// or an inactive show, yields model.ErrShowFull.  On any error nothing is
// written.
func (r *BookingRepo) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	if len(b.Seats) == 0 {
		return model.Booking{}, model.ErrTooManySeats
	}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (booking_reference, user_id, show_id, movie_title, theater, screen, show_time,
				seats, seat_count, total_amount_cents, status, payment_status, payment_method, payment_ref,
				created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.Reference, b.UserID, b.ShowID, b.MovieTitle, b.Theater, b.Screen, b.ShowTime.UTC(),
			model.JoinSeats(b.Seats), len(b.Seats), b.TotalAmountCents,
			string(b.Status), string(b.PaymentStatus), string(b.PaymentMethod), nullString(b.PaymentRef),
			b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		b.ID = uint64(id)

		query := `INSERT INTO booking_seats (booking_id, show_id, seat_code) VALUES `
		args := make([]interface{}, 0, len(b.Seats)*3)
		for i, s := range b.Seats {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?)"
			args = append(args, b.ID, b.ShowID, string(s))
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isDuplicate(err) {
				return model.ErrSeatUnavailable
			}
			return err
		}

		codes := make([]interface{}, 0, len(b.Seats)+2)
		codes = append(codes, b.ShowID, b.UserID)
		for _, s := range b.Seats {
			codes = append(codes, string(s))
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM seat_locks WHERE show_id = ? AND user_id = ? AND seat_code IN (`+placeholders(len(b.Seats))+`)`,
			codes...,
		); err != nil {
			return err
		}

		n := len(b.Seats)
		res, err = tx.ExecContext(ctx,
			`UPDATE shows SET booked_seats = booked_seats + ?
			 WHERE id = ? AND is_active = 1 AND booked_seats + ? <= total_seats`,
			n, b.ShowID, n,
		)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return model.ErrShowFull
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// Get returns a booking by id or model.ErrBookingNotFound.
func (r *BookingRepo) Get(ctx context.Context, id uint64) (model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, model.ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking %d: %w", id, classify(err))
	}
	return b, nil
}

// ListByUser returns every booking of a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

// FindPendingPayment locates the booking a payment event refers to.  A
// stored payment reference is tried first; the (user, show, seat set)
// match is the fallback for bookings created without one.
func (r *BookingRepo) FindPendingPayment(ctx context.Context, m model.PaymentMatch) (model.Booking, error) {
	if m.Ref != "" {
		list, err := r.query(ctx,
			`SELECT `+bookingColumns+` FROM bookings
			 WHERE payment_ref = ? AND payment_status = 'pending' AND status <> 'cancelled'
			 ORDER BY id DESC LIMIT 1`,
			m.Ref,
		)
		if err != nil {
			return model.Booking{}, err
		}
		if len(list) > 0 {
			return list[0], nil
		}
	}
	if !m.BySeats() {
		return model.Booking{}, model.ErrBookingNotFound
	}
	list, err := r.query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = ? AND show_id = ? AND payment_status = 'pending' AND status <> 'cancelled'
		 ORDER BY id DESC`,
		m.UserID, m.ShowID,
	)
	if err != nil {
		return model.Booking{}, err
	}
	for _, b := range list {
		if model.SameSeats(b.Seats, m.Seats) {
			return b, nil
		}
	}
	return model.Booking{}, model.ErrBookingNotFound
}

// Transition applies t to a booking under a row lock.  When the stored
// state does not satisfy t the booking is returned unchanged with
// applied=false.  A releasing transition deletes the booking's seat claims
// and decrements the show counter before committing.
func (r *BookingRepo) Transition(ctx context.Context, id uint64, t model.Transition) (model.Booking, bool, error) {
	var out model.Booking
	applied := false
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := scanBooking(tx.QueryRowContext(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if !t.Allows(cur) {
			out = cur
			return nil
		}
		next := t.Apply(cur)
		if _, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, payment_status = ?, payment_ref = ?, updated_at = ? WHERE id = ?`,
			string(next.Status), string(next.PaymentStatus), nullString(next.PaymentRef), next.UpdatedAt.UTC(), id,
		); err != nil {
			return err
		}
		if t.ReleaseSeats {
			res, err := tx.ExecContext(ctx, `DELETE FROM booking_seats WHERE booking_id = ?`, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				res, err = tx.ExecContext(ctx,
					`UPDATE shows SET booked_seats = booked_seats - ? WHERE id = ? AND booked_seats >= ?`,
					n, next.ShowID, n,
				)
				if err != nil {
					return err
				}
				if affected, err := res.RowsAffected(); err != nil {
					return err
				} else if affected == 0 {
					return fmt.Errorf("show %d booked_seats would drop below zero", next.ShowID)
				}
			}
		}
		out = next
		applied = true
		return nil
	})
	if err != nil {
		return model.Booking{}, false, err
	}
	return out, applied, nil
}

func (r *BookingRepo) query(ctx context.Context, q string, args ...interface{}) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", classify(err))
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
