package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeValidationFailed         = "ValidationFailed"
	CodeTooManySeats             = "TooManySeats"
	CodeInvalidSeat              = "InvalidSeat"
	CodeSeatUnavailable          = "SeatUnavailable"
	CodeAlreadyLocked            = "AlreadyLocked"
	CodeLockNotHeld              = "LockNotHeld"
	CodeShowFull                 = "ShowFull"
	CodeShowStarted              = "ShowStarted"
	CodeNotFound                 = "NotFound"
	CodeCancellationWindowClosed = "CancellationWindowClosed"
	CodeUnauthorized             = "Unauthorized"
	CodeInternalError            = "InternalError"
	CodeServiceUnavailable       = "ServiceUnavailable"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first target matched with errors.Is wins.
var errorMappings = []errorMapping{
	{model.ErrInvalidSeat, http.StatusBadRequest, CodeInvalidSeat},
	{model.ErrTooManySeats, http.StatusBadRequest, CodeTooManySeats},
	{model.ErrInvalidPaymentMethod, http.StatusBadRequest, CodeValidationFailed},
	{model.ErrPaymentRefRequired, http.StatusBadRequest, CodeValidationFailed},
	{model.ErrInvalidPaymentEvent, http.StatusBadRequest, CodeValidationFailed},
	{model.ErrSeatUnavailable, http.StatusConflict, CodeSeatUnavailable},
	{model.ErrAlreadyBooked, http.StatusConflict, CodeSeatUnavailable},
	{model.ErrAlreadyLocked, http.StatusConflict, CodeAlreadyLocked},
	{model.ErrLockNotHeld, http.StatusConflict, CodeLockNotHeld},
	{model.ErrShowFull, http.StatusConflict, CodeShowFull},
	{model.ErrShowStarted, http.StatusConflict, CodeShowStarted},
	{model.ErrCancellationWindowClosed, http.StatusConflict, CodeCancellationWindowClosed},
	{model.ErrShowNotFound, http.StatusNotFound, CodeNotFound},
	{model.ErrBookingNotFound, http.StatusNotFound, CodeNotFound},
	{model.ErrLockNotFound, http.StatusNotFound, CodeNotFound},
	{model.ErrTransient, http.StatusServiceUnavailable, CodeServiceUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, CodeServiceUnavailable},
}

// classifyError maps a service error to an HTTP status and error code.
func classifyError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternalError
}

// respondError writes the error body for err.  Unexpected errors are
// logged and hidden behind a generic message.
func respondError(c echo.Context, logger *slog.Logger, err error) error {
	status, code := classifyError(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.ErrorContext(c.Request().Context(), "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		logger.WarnContext(c.Request().Context(), "storage unavailable",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		msg = "service temporarily unavailable, please retry"
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": CodeValidationFailed})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": CodeUnauthorized})
}
