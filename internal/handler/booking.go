package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/safarline/booking/internal/booking"
    "github.com/safarline/booking/internal/repository"
)

// BookingHandler exposes the booking coordinator over HTTP.  All
// stateful operations go through the coordinator; read-only listing
// endpoints query the ledger repository directly.  Methods assume
// JWT authentication has already run for the protected routes and
// may return 401 when the user ID cannot be extracted from context.
type BookingHandler struct {
    Coord    *booking.Coordinator
    Bookings *repository.BookingRepo
}

// NewBookingHandler constructs a BookingHandler.  Both dependencies
// must be non-nil.
func NewBookingHandler(coord *booking.Coordinator, bookings *repository.BookingRepo) *BookingHandler {
    if coord == nil || bookings == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{Coord: coord, Bookings: bookings}
}

// Availability handles GET /v1/trips/:id/availability.  Public,
// advisory read: the returned seat map can be stale by the time the
// client acts, which every stateful endpoint re-validates.
func (h *BookingHandler) Availability(c echo.Context) error {
    tripID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    av, err := h.Coord.Availability(c.Request().Context(), tripID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, av)
}

// HoldSeats handles POST /v1/trips/:id/hold.  It claims the
// requested seat numbers for the authenticated user for the hold TTL
// and returns the hold id with its expiry.  Conflicting seats yield
// 409 with code SEAT_NOT_AVAILABLE and the conflicting list.
func (h *BookingHandler) HoldSeats(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tripID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    var body struct {
        Seats []int `json:"seats"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    hold, err := h.Coord.RequestHold(c.Request().Context(), tripID, userID, body.Seats)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, hold)
}

// ReleaseHold handles DELETE /v1/trips/:id/hold/:hold_id.  Releasing
// an already-expired or unknown hold is a no-op 204: the end state
// the client asked for is already true.
func (h *BookingHandler) ReleaseHold(c echo.Context) error {
    if _, err := getUserID(c); err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tripID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    holdID := c.Param("hold_id")
    if holdID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
    }
    if err := h.Coord.ReleaseHold(c.Request().Context(), tripID, holdID); err != nil {
        return writeError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// ConfirmBooking handles POST /v1/trips/:id/confirm.  It promotes a
// hold into a booking and settles payment.  An expired hold yields
// 410 HOLD_EXPIRED (restart from availability); a declined payment
// yields 402 with the pending booking attached so the client can
// retry via /v1/bookings/:id/pay.
func (h *BookingHandler) ConfirmBooking(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tripID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
    }
    var body struct {
        HoldID       string `json:"hold_id"`
        PaymentToken string `json:"payment_token"`
    }
    if err := c.Bind(&body); err != nil || body.HoldID == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_id is required"})
    }
    b, err := h.Coord.ConfirmBooking(c.Request().Context(), tripID, body.HoldID, userID, body.PaymentToken)
    if errors.Is(err, booking.ErrPaymentDeclined) {
        return c.JSON(http.StatusPaymentRequired, echo.Map{
            "error":   "payment declined",
            "code":    "PAYMENT_DECLINED",
            "booking": b,
        })
    }
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, b)
}

// RetryPayment handles POST /v1/bookings/:id/pay.  It re-runs
// payment settlement for a pending booking within the grace window.
func (h *BookingHandler) RetryPayment(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    var body struct {
        PaymentToken string `json:"payment_token"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    b, err := h.Coord.RetryPayment(c.Request().Context(), bookingID, userID, body.PaymentToken)
    if errors.Is(err, booking.ErrPaymentDeclined) {
        return c.JSON(http.StatusPaymentRequired, echo.Map{
            "error":   "payment declined",
            "code":    "PAYMENT_DECLINED",
            "booking": b,
        })
    }
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// CancelBooking handles DELETE /v1/bookings/:id.  Cancellation is
// refused inside the cutoff window before departure with 409
// CANCELLATION_WINDOW_CLOSED.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := h.Coord.CancelBooking(c.Request().Context(), bookingID, userID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// ListBookings handles GET /v1/my-bookings.  Returns the caller's
// bookings newest first; an empty list when none exist.
func (h *BookingHandler) ListBookings(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    items, err := h.Bookings.ListByUser(c.Request().Context(), userID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load bookings"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetBooking handles GET /v1/bookings/:id.  Ownership is enforced:
// someone else's booking reads as 404.
func (h *BookingHandler) GetBooking(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    bookingID, err := pathID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    b, err := h.Bookings.GetByID(c.Request().Context(), bookingID)
    if err != nil {
        return writeError(c, err)
    }
    if b.UserID != userID {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    }
    return c.JSON(http.StatusOK, echo.Map{"item": b})
}

// writeError maps coordinator errors onto HTTP responses.  Contention
// errors are 409 and carry the conflicting seats; state errors map to
// 400/404/410; everything else is a 500 with no detail leaked.
func writeError(c echo.Context, err error) error {
    var sna *booking.SeatNotAvailableError
    if errors.As(err, &sna) {
        return c.JSON(http.StatusConflict, echo.Map{
            "error":       "some seats are unavailable",
            "code":        "SEAT_NOT_AVAILABLE",
            "unavailable": sna.Seats,
        })
    }
    var isr *booking.InvalidSeatRequestError
    if errors.As(err, &isr) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": isr.Error()})
    }
    switch {
    case errors.Is(err, booking.ErrTripNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
    case errors.Is(err, booking.ErrBookingNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
    case errors.Is(err, booking.ErrHoldNotFound):
        return c.JSON(http.StatusGone, echo.Map{
            "error": "hold expired or not found",
            "code":  "HOLD_EXPIRED",
        })
    case errors.Is(err, booking.ErrTripNotBookable):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "trip is not accepting bookings",
            "code":  "TRIP_NOT_BOOKABLE",
        })
    case errors.Is(err, booking.ErrCancellationWindowClosed):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "cancellation window closed",
            "code":  "CANCELLATION_WINDOW_CLOSED",
        })
    case errors.Is(err, booking.ErrInvalidTransition):
        return c.JSON(http.StatusConflict, echo.Map{"error": "booking is not in a state that allows this"})
    }
    c.Logger().Error(err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// pathID parses a positive uint64 path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid id")
    }
    return id, nil
}

// getUserID extracts the authenticated user's ID from the context,
// where the JWT middleware stored the token's subject claim.
func getUserID(c echo.Context) (uint64, error) {
    v := c.Get("user_id")
    switch t := v.(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}
