package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
)

// RegisterCustomer registers the customer endpoints under /v1.  All of
// them require a valid JWT with the CUSTOMER role.  The rate limiter, when
// given, runs after authentication so buckets are keyed by user.
func RegisterCustomer(e *echo.Echo, s *handler.SeatHandler, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(CustomerRole),
	)
	mutating := []echo.MiddlewareFunc{}
	if limit != nil {
		mutating = append(mutating, limit)
	}

	g.POST("/shows/:id/lock-seat", s.LockSeat, mutating...)
	g.POST("/shows/:id/unlock-seat", s.UnlockSeat, mutating...)
	g.GET("/shows/:id/my-locks", s.MyLocks)
	g.DELETE("/shows/:id/locks", s.ReleaseAll, mutating...)

	g.POST("/bookings", b.Create, mutating...)
	g.GET("/bookings", b.List)
	g.GET("/bookings/:id", b.Get)
	g.PATCH("/bookings/:id/cancel", b.Cancel, mutating...)
}
