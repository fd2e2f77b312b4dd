package router // route registration for the HTTP API

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
)

// CustomerRole is the JWT role allowed to lock seats and book.
const CustomerRole = "CUSTOMER"

// Deps bundles what New needs to build the server.
type Deps struct {
	Seats     *handler.SeatHandler
	Bookings  *handler.BookingHandler
	Payments  *handler.PaymentHandler
	JWTSecret string
	// RateLimit guards the mutating customer routes.  Nil disables it.
	RateLimit echo.MiddlewareFunc
	Logger    *slog.Logger
}

// New returns an echo instance with the shared middleware and every route
// registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e)
	RegisterPublic(e, d.Seats)
	RegisterCustomer(e, d.Seats, d.Bookings, d.JWTSecret, d.RateLimit)
	RegisterPayments(e, d.Payments)
	return e
}

// RegisterRoutes registers routes that need no authentication and are not
// part of the API, currently only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPublic registers the unauthenticated seat map so guests can see
// availability before signing in.
func RegisterPublic(e *echo.Echo, s *handler.SeatHandler) {
	e.GET("/v1/shows/:id/seats", s.Seats)
}

// RegisterPayments registers the payment provider callback.  It is
// authenticated by a shared token, not a JWT.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	if p == nil {
		return
	}
	e.POST("/v1/payments/webhook", p.Webhook)
}
