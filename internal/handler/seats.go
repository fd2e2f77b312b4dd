package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

// SeatHandler serves the seat map and the per-seat lock endpoints.
type SeatHandler struct {
	Coordinator  *service.Coordinator
	Availability *service.Availability
	Logger       *slog.Logger
}

// NewSeatHandler constructs a SeatHandler and panics if a dependency is nil.
func NewSeatHandler(coord *service.Coordinator, avail *service.Availability, logger *slog.Logger) *SeatHandler {
	if coord == nil || avail == nil {
		panic("nil service passed to NewSeatHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SeatHandler{Coordinator: coord, Availability: avail, Logger: logger}
}

type seatRequest struct {
	SeatID string `json:"seat_id" validate:"required"`
}

type lockResponse struct {
	ShowID      uint64       `json:"show_id"`
	SeatID      model.SeatID `json:"seat_id"`
	LockedUntil string       `json:"locked_until"`
}

func toLockResponse(l model.SeatLock) lockResponse {
	return lockResponse{ShowID: l.ShowID, SeatID: l.SeatID, LockedUntil: l.ExpiresAt.UTC().Format(time.RFC3339)}
}

// Seats handles GET /v1/shows/:id/seats and returns the status of every
// seat in the grid.
func (h *SeatHandler) Seats(c echo.Context) error {
	showID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Availability.SeatStatuses(ctx, showID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "items": items})
}

// LockSeat handles POST /v1/shows/:id/lock-seat.
func (h *SeatHandler) LockSeat(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	var req seatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	lock, err := h.Coordinator.LockSeat(ctx, showID, req.SeatID, uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, toLockResponse(lock))
}

// UnlockSeat handles POST /v1/shows/:id/unlock-seat.
func (h *SeatHandler) UnlockSeat(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	var req seatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Coordinator.UnlockSeat(ctx, showID, req.SeatID, uid); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "seat_id": req.SeatID, "unlocked": true})
}

// MyLocks handles GET /v1/shows/:id/my-locks.
func (h *SeatHandler) MyLocks(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	locks, err := h.Coordinator.MyLocks(ctx, showID, uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	items := make([]lockResponse, 0, len(locks))
	for _, l := range locks {
		items = append(items, toLockResponse(l))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ReleaseAll handles DELETE /v1/shows/:id/locks and drops the caller's
// whole selection for the show.
func (h *SeatHandler) ReleaseAll(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	showID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	n, err := h.Coordinator.ReleaseAll(ctx, showID, uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "released": n})
}
