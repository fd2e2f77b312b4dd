package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

// BookingHandler serves booking creation, lookup and cancellation.
type BookingHandler struct {
	Committer *service.Committer
	Logger    *slog.Logger
}

// NewBookingHandler constructs a BookingHandler and panics if committer is
// nil.
func NewBookingHandler(committer *service.Committer, logger *slog.Logger) *BookingHandler {
	if committer == nil {
		panic("nil committer passed to NewBookingHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{Committer: committer, Logger: logger}
}

type createBookingRequest struct {
	ShowID        uint64   `json:"show_id" validate:"required"`
	Seats         []string `json:"seats"`
	PaymentMethod string   `json:"payment_method" validate:"required"`
	PaymentRef    string   `json:"payment_ref"`
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Committer.Commit(ctx, service.CommitInput{
		ShowID:        req.ShowID,
		UserID:        uid,
		Seats:         req.Seats,
		PaymentMethod: req.PaymentMethod,
		PaymentRef:    req.PaymentRef,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings.
func (h *BookingHandler) List(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	list, err := h.Committer.List(ctx, uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Committer.Get(ctx, id, uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles PATCH /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Committer.Cancel(ctx, id, uid)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, b)
}
