// Package memory is a single-process implementation of the show catalog,
// the booking store and the seat lock store.  One mutex guards all state,
// which gives each operation the same atomicity the MySQL transactions
// provide.  The service and handler tests run against it.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

type seatKey struct {
	show uint64
	seat model.SeatID
}

// Store holds shows, bookings and seat locks in maps.
type Store struct {
	mu       sync.Mutex
	shows    map[uint64]model.Show
	bookings map[uint64]model.Booking
	claimed  map[seatKey]uint64 // seat -> active booking id
	locks    map[seatKey]model.SeatLock
	nextID   uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		shows:    make(map[uint64]model.Show),
		bookings: make(map[uint64]model.Booking),
		claimed:  make(map[seatKey]uint64),
		locks:    make(map[seatKey]model.SeatLock),
	}
}

// AddShow inserts or replaces a show.
func (s *Store) AddShow(show model.Show) {
	s.mu.Lock()
	s.shows[show.ID] = show
	s.mu.Unlock()
}

// GetShow returns a show or model.ErrShowNotFound.
func (s *Store) GetShow(_ context.Context, id uint64) (model.Show, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	show, ok := s.shows[id]
	if !ok {
		return model.Show{}, model.ErrShowNotFound
	}
	return show, nil
}

// Acquire grants holder a lock unless the seat is booked or live-locked.
func (s *Store) Acquire(_ context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time, ttl time.Duration) (model.SeatLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seatKey{showID, seat}
	if _, booked := s.claimed[k]; booked {
		return model.SeatLock{}, model.ErrAlreadyBooked
	}
	if cur, ok := s.locks[k]; ok && cur.LiveAt(now) {
		return model.SeatLock{}, model.ErrAlreadyLocked
	}
	lock := model.SeatLock{
		ShowID:    showID,
		SeatID:    seat,
		HolderID:  holder,
		ExpiresAt: now.Add(ttl).UTC(),
		CreatedAt: now.UTC(),
	}
	s.locks[k] = lock
	return lock, nil
}

// Release removes holder's live lock or returns model.ErrLockNotFound.
func (s *Store) Release(_ context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seatKey{showID, seat}
	cur, ok := s.locks[k]
	if !ok || cur.HolderID != holder || !cur.LiveAt(now) {
		return model.ErrLockNotFound
	}
	delete(s.locks, k)
	return nil
}

// ReleaseHeld removes holder's locks on seats, or all of them for the
// show when seats is nil.
func (s *Store) ReleaseHeld(_ context.Context, showID, holder uint64, seats []model.SeatID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	if seats == nil {
		for k, l := range s.locks {
			if k.show == showID && l.HolderID == holder {
				delete(s.locks, k)
				n++
			}
		}
		return n, nil
	}
	for _, seat := range seats {
		k := seatKey{showID, seat}
		if l, ok := s.locks[k]; ok && l.HolderID == holder {
			delete(s.locks, k)
			n++
		}
	}
	return n, nil
}

// ActiveByShow returns the live locks of a show ordered by seat.
func (s *Store) ActiveByShow(_ context.Context, showID uint64, now time.Time) ([]model.SeatLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SeatLock
	for k, l := range s.locks {
		if k.show == showID && l.LiveAt(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

// PurgeExpired drops expired locks.
func (s *Store) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, l := range s.locks {
		if !l.LiveAt(now) {
			delete(s.locks, k)
			n++
		}
	}
	return n, nil
}

// Claim pins holder's live locks on seats until at least now+hold, or
// returns model.ErrLockNotHeld without touching any of them.
func (s *Store) Claim(_ context.Context, showID, holder uint64, seats []model.SeatID, now time.Time, hold time.Duration) error {
	if len(seats) == 0 {
		return model.ErrLockNotHeld
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range seats {
		l, ok := s.locks[seatKey{showID, seat}]
		if !ok || l.HolderID != holder || !l.LiveAt(now) {
			return model.ErrLockNotHeld
		}
	}
	until := now.Add(hold).UTC()
	for _, seat := range seats {
		k := seatKey{showID, seat}
		if l := s.locks[k]; l.ExpiresAt.Before(until) {
			l.ExpiresAt = until
			s.locks[k] = l
		}
	}
	return nil
}

// LockCount reports how many lock entries exist, expired ones included.
func (s *Store) LockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// BookedSeats returns the seats claimed by active bookings of a show.
func (s *Store) BookedSeats(_ context.Context, showID uint64) (map[model.SeatID]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.SeatID]struct{})
	for k := range s.claimed {
		if k.show == showID {
			out[k.seat] = struct{}{}
		}
	}
	return out, nil
}

// Create stores b, claims its seats, bumps the show counter and drops the
// booker's locks on those seats, or changes nothing when any seat is
// claimed or the show is full.
func (s *Store) Create(_ context.Context, b model.Booking) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(b.Seats) == 0 {
		return model.Booking{}, model.ErrTooManySeats
	}
	for _, seat := range b.Seats {
		if _, taken := s.claimed[seatKey{b.ShowID, seat}]; taken {
			return model.Booking{}, model.ErrSeatUnavailable
		}
	}
	show, ok := s.shows[b.ShowID]
	n := uint32(len(b.Seats))
	if !ok || !show.IsActive || show.BookedSeats+n > show.TotalSeats {
		return model.Booking{}, model.ErrShowFull
	}
	s.nextID++
	b.ID = s.nextID
	b.Seats = append([]model.SeatID(nil), b.Seats...)
	for _, seat := range b.Seats {
		k := seatKey{b.ShowID, seat}
		s.claimed[k] = b.ID
		if l, ok := s.locks[k]; ok && l.HolderID == b.UserID {
			delete(s.locks, k)
		}
	}
	show.BookedSeats += n
	s.shows[b.ShowID] = show
	s.bookings[b.ID] = b
	return b, nil
}

// Get returns a booking or model.ErrBookingNotFound.
func (s *Store) Get(_ context.Context, id uint64) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, model.ErrBookingNotFound
	}
	return b, nil
}

// ListByUser returns a user's bookings, newest first.
func (s *Store) ListByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// FindPendingPayment mirrors the MySQL matching rules.
func (s *Store) FindPendingPayment(_ context.Context, m model.PaymentMatch) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.bookings))
	for id := range s.bookings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	pending := func(b model.Booking) bool {
		return b.PaymentStatus == model.PaymentPending && b.Status != model.BookingCancelled
	}
	if m.Ref != "" {
		for _, id := range ids {
			b := s.bookings[id]
			if pending(b) && b.PaymentRef != nil && *b.PaymentRef == m.Ref {
				return b, nil
			}
		}
	}
	if !m.BySeats() {
		return model.Booking{}, model.ErrBookingNotFound
	}
	for _, id := range ids {
		b := s.bookings[id]
		if pending(b) && b.UserID == m.UserID && b.ShowID == m.ShowID && model.SameSeats(b.Seats, m.Seats) {
			return b, nil
		}
	}
	return model.Booking{}, model.ErrBookingNotFound
}

// Transition applies t when the stored booking allows it.
func (s *Store) Transition(_ context.Context, id uint64, t model.Transition) (model.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, false, model.ErrBookingNotFound
	}
	if !t.Allows(cur) {
		return cur, false, nil
	}
	next := t.Apply(cur)
	if t.ReleaseSeats {
		var n uint32
		for _, seat := range next.Seats {
			k := seatKey{next.ShowID, seat}
			if s.claimed[k] == id {
				delete(s.claimed, k)
				n++
			}
		}
		show := s.shows[next.ShowID]
		if show.BookedSeats >= n {
			show.BookedSeats -= n
		} else {
			show.BookedSeats = 0
		}
		s.shows[next.ShowID] = show
	}
	s.bookings[id] = next
	return next, true, nil
}
