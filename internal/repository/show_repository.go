package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// ShowRepo reads shows from the catalog table.  The reservation core never
// edits a show except for its booked_seats counter, which is changed by
// BookingRepo inside booking transactions.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

const showColumns = `id, movie_title, theater, screen, starts_at, ends_at, price_cents,
	total_seats, booked_seats, is_active, created_at, updated_at`

// GetShow retrieves a show by its ID.  It returns model.ErrShowNotFound if
// there is no matching row.
func (r *ShowRepo) GetShow(ctx context.Context, id uint64) (model.Show, error) {
	var s model.Show
	err := r.db.QueryRowContext(ctx, `SELECT `+showColumns+` FROM shows WHERE id = ?`, id).Scan(
		&s.ID, &s.MovieTitle, &s.Theater, &s.Screen, &s.StartsAt, &s.EndsAt, &s.PriceCents,
		&s.TotalSeats, &s.BookedSeats, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Show{}, model.ErrShowNotFound
	}
	if err != nil {
		return model.Show{}, fmt.Errorf("get show %d: %w", id, classify(err))
	}
	return s, nil
}

// Create inserts a show and assigns the generated ID back to s.  It exists
// for seeding standalone deployments and tests; the catalog service owns
// show creation in production.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (movie_title, theater, screen, starts_at, ends_at, price_cents, total_seats, booked_seats, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.MovieTitle, s.Theater, s.Screen, s.StartsAt.UTC(), s.EndsAt.UTC(),
		s.PriceCents, s.TotalSeats, s.BookedSeats, s.IsActive)
	if err != nil {
		return fmt.Errorf("create show: %w", classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetShow(ctx, uint64(id))
	if err != nil {
		return err
	}
	*s = created
	return nil
}
