package model

import "time"

// Show represents a scheduled screening as seen by the reservation core.
// The catalog owns every field except BookedSeats, which is adjusted only
// by committing, cancelling or failing a booking.  This struct corresponds
// to a row in the `shows` table.
//
// Fields:
//  ID          – primary key identifier.
//  MovieTitle  – title of the movie being screened.
//  Theater     – theater name.
//  Screen      – screen (hall) name inside the theater.
//  StartsAt    – when the show begins.
//  EndsAt      – when the show ends (must be after StartsAt).
//  PriceCents  – current price of a single seat in cents.
//  TotalSeats  – seat capacity.
//  BookedSeats – seats held by pending or confirmed bookings.
//  IsActive    – whether the show can be booked.
type Show struct {
	ID          uint64    // shows.id
	MovieTitle  string    // shows.movie_title
	Theater     string    // shows.theater
	Screen      string    // shows.screen
	StartsAt    time.Time // shows.starts_at
	EndsAt      time.Time // shows.ends_at
	PriceCents  uint32    // shows.price_cents
	TotalSeats  uint32    // shows.total_seats
	BookedSeats uint32    // shows.booked_seats
	IsActive    bool      // shows.is_active
	CreatedAt   time.Time // shows.created_at
	UpdatedAt   time.Time // shows.updated_at
}

// AvailableSeats returns the number of seats not claimed by an active booking.
func (s Show) AvailableSeats() uint32 {
	if s.BookedSeats >= s.TotalSeats {
		return 0
	}
	return s.TotalSeats - s.BookedSeats
}
