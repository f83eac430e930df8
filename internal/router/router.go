package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"

    "github.com/safarline/booking/internal/handler"
    "github.com/safarline/booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication
// on the provided Echo instance: the health check and the advisory
// availability read, which the booking funnel shows before login.
func RegisterRoutes(e *echo.Echo, b *handler.BookingHandler) {
    // Load balancers and monitoring probe this to verify the service is up.
    e.GET("/healthz", handler.Health)
    e.GET("/v1/trips/:id/availability", b.Availability)
}

// RegisterBooking registers the authenticated booking endpoints under
// /v1 behind the JWT middleware.  The hold, confirm and cancel flow
// lives here; every route resolves the acting user from the token.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, jwtSecret string) {
    g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

    // Seat holds: claim seats for the TTL, release them early.
    g.POST("/trips/:id/hold", b.HoldSeats)
    g.DELETE("/trips/:id/hold/:hold_id", b.ReleaseHold)

    // Promote a hold into a booking and settle payment.
    g.POST("/trips/:id/confirm", b.ConfirmBooking)

    // Booking lifecycle after promotion.
    g.POST("/bookings/:id/pay", b.RetryPayment)
    g.DELETE("/bookings/:id", b.CancelBooking)
    g.GET("/bookings/:id", b.GetBooking)
    g.GET("/my-bookings", b.ListBookings)
}
