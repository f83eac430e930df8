// Package booking contains the coordinator that orchestrates seat
// availability, hold lifecycle and the promotion of holds into ledger
// entries, together with the typed errors it surfaces.  Errors fall into three
// groups: contention errors (frequent under load, retryable with
// different seats), state errors (client input or stale client state)
// and infrastructure errors (storage failures, propagated as-is and
// fatal for the current request).
package booking

import (
    "errors"
    "fmt"
)

// ErrTripNotFound is returned when the referenced trip does not exist.
var ErrTripNotFound = errors.New("trip not found")

// ErrBookingNotFound is returned when the referenced booking does not
// exist or is not visible to the caller.
var ErrBookingNotFound = errors.New("booking not found")

// ErrHoldNotFound is returned when a hold is absent or has already
// expired.  The client must restart the flow from an availability
// check; a blind retry of confirmation cannot succeed.
var ErrHoldNotFound = errors.New("hold not found or expired")

// ErrTripNotBookable is returned when the trip's status no longer
// accepts new bookings.
var ErrTripNotBookable = errors.New("trip is not accepting bookings")

// ErrSeatConflict signals that the ledger's uniqueness constraint
// rejected a seat claim.  This is the last line of defense against a
// race the hold store should normally have prevented; callers release
// the stale hold and surface SeatNotAvailableError.
var ErrSeatConflict = errors.New("seat already committed in ledger")

// ErrCancellationWindowClosed is returned when a booking can no longer
// be cancelled because the trip departs too soon.
var ErrCancellationWindowClosed = errors.New("cancellation window closed")

// ErrInvalidTransition is returned when a requested booking status
// change is not part of the lifecycle (e.g. cancelling an expired
// booking or paying for a confirmed one).
var ErrInvalidTransition = errors.New("illegal booking status transition")

// ErrPaymentDeclined is returned when payment verification fails.  The
// booking stays pending so the user can retry payment on the same
// seats until the pending grace period runs out.
var ErrPaymentDeclined = errors.New("payment declined")

// InvalidSeatRequestError reports a structurally invalid seat request:
// empty set, duplicate seat numbers, or numbers outside the trip's
// [1, capacity] range.
type InvalidSeatRequestError struct {
    Reason string
}

func (e *InvalidSeatRequestError) Error() string {
    return fmt.Sprintf("invalid seat request: %s", e.Reason)
}

// HoldConflictError is returned by a hold store when one or more of
// the requested seats are already claimed by another live hold.
type HoldConflictError struct {
    Seats []int
}

func (e *HoldConflictError) Error() string {
    return fmt.Sprintf("seats already held: %v", e.Seats)
}

// SeatNotAvailableError is the user-facing contention error.  Seats
// lists the conflicting seat numbers so the client can retry with a
// different selection.
type SeatNotAvailableError struct {
    Seats []int
}

func (e *SeatNotAvailableError) Error() string {
    return fmt.Sprintf("seats not available: %v", e.Seats)
}

// IsContention reports whether err is one of the expected-under-load
// contention errors.  Handlers map these to 409 and never log them as
// severe.
func IsContention(err error) bool {
    var hc *HoldConflictError
    var sna *SeatNotAvailableError
    return errors.As(err, &hc) || errors.As(err, &sna) || errors.Is(err, ErrSeatConflict)
}
