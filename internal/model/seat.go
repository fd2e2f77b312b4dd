package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SeatID identifies a seat inside a show's fixed grid.  It is a row
// letter followed by a one-based column number, e.g. "A1" or "J14".
type SeatID string

// Row returns the zero-based row index encoded in the seat ID.
func (s SeatID) Row() int {
	if len(s) == 0 {
		return -1
	}
	return int(s[0] - 'A')
}

// Col returns the one-based column number encoded in the seat ID.
func (s SeatID) Col() int {
	if len(s) < 2 {
		return 0
	}
	n, err := strconv.Atoi(string(s[1:]))
	if err != nil {
		return 0
	}
	return n
}

// SeatGrid describes the seating layout shared by every show: Rows rows
// labelled A, B, C... and Cols numbered seats per row.
type SeatGrid struct {
	Rows int
	Cols int
}

// DefaultSeatGrid is the 10 × 14 layout (A1..J14).
var DefaultSeatGrid = SeatGrid{Rows: 10, Cols: 14}

// Size returns the number of seats in the grid.
func (g SeatGrid) Size() int { return g.Rows * g.Cols }

// Parse validates raw against the grid and returns its canonical form.
// Lower-case row letters and surrounding whitespace are accepted; signs,
// leading zeros and out-of-range rows or columns are not.  The result is
// always the one spelling stores key locks and bookings by.
func (g SeatGrid) Parse(raw string) (SeatID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	row := int(s[0]) - 'A'
	if row < 0 || row >= g.Rows || row >= 26 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	digits := s[1:]
	if digits[0] == '0' || len(digits) > 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	col := 0
	for i := 0; i < len(digits); i++ {
		d := digits[i]
		if d < '0' || d > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
		}
		col = col*10 + int(d-'0')
	}
	if col < 1 || col > g.Cols {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeat, raw)
	}
	return seatID(row, col), nil
}

// seatID formats the canonical ID of a zero-based row and one-based column.
func seatID(row, col int) SeatID {
	return SeatID(string(rune('A'+row)) + strconv.Itoa(col))
}

// ParseAll parses every raw ID and rejects duplicates.  The returned slice
// keeps the caller's order.
func (g SeatGrid) ParseAll(raw []string) ([]SeatID, error) {
	out := make([]SeatID, 0, len(raw))
	seen := make(map[SeatID]struct{}, len(raw))
	for _, r := range raw {
		id, err := g.Parse(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate seat %s", ErrInvalidSeat, id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Seats enumerates the grid row by row: A1, A2, ... A14, B1, ...
func (g SeatGrid) Seats() []SeatID {
	out := make([]SeatID, 0, g.Size())
	for r := 0; r < g.Rows && r < 26; r++ {
		for c := 1; c <= g.Cols; c++ {
			out = append(out, seatID(r, c))
		}
	}
	return out
}

// SeatAvailability is the tri-state status of a seat in a show.
type SeatAvailability string

const (
	SeatAvailable SeatAvailability = "available"
	SeatLocked    SeatAvailability = "locked"
	SeatBooked    SeatAvailability = "booked"
)

// SeatStatus is one cell of the availability view.  HolderID and
// LockedUntil are only set when Status is SeatLocked.
type SeatStatus struct {
	SeatID      SeatID           `json:"seat_id"`
	Status      SeatAvailability `json:"status"`
	HolderID    *uint64          `json:"holder_id,omitempty"`
	LockedUntil *string          `json:"locked_until,omitempty"`
}
