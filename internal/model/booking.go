package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.  A
// booking is created pending when a hold is promoted, becomes
// confirmed when payment succeeds, and ends in one of the terminal
// states cancelled, expired or completed.  Rows are never deleted;
// the status column is the soft lifecycle kept for audit.
type BookingStatus string

const (
    BookingStatusPending   BookingStatus = "pending"
    BookingStatusConfirmed BookingStatus = "confirmed"
    BookingStatusCancelled BookingStatus = "cancelled"
    BookingStatusExpired   BookingStatus = "expired"
    BookingStatusCompleted BookingStatus = "completed"
)

// PaymentStatus enumerates the payment states tracked alongside a
// booking's lifecycle status.
type PaymentStatus string

const (
    PaymentStatusPending   PaymentStatus = "pending"
    PaymentStatusCompleted PaymentStatus = "completed"
    PaymentStatusFailed    PaymentStatus = "failed"
    PaymentStatusRefunded  PaymentStatus = "refunded"
)

// bookingTransitions is the closed set of legal status transitions.
// Terminal states (cancelled, expired, completed) have no successors.
var bookingTransitions = map[BookingStatus][]BookingStatus{
    BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
    BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted},
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.  Illegal transitions must be rejected at the
// ledger rather than left to caller discipline.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
    for _, allowed := range bookingTransitions[s] {
        if allowed == next {
            return true
        }
    }
    return false
}

// Active reports whether the booking status counts its seats as
// committed for availability purposes.
func (s BookingStatus) Active() bool {
    return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Booking records a user's durable seat allocation on a trip.  It
// aggregates one or more seat numbers claimed in a single
// transaction together with the overall status, payment status and
// total amount.  The core invariant is that across all bookings for
// a trip with status pending or confirmed, no seat number appears
// twice.
//
// Fields:
//  ID               – primary key identifier.
//  TripID           – trip the seats belong to.
//  UserID           – user who owns the booking.
//  Seats            – seat numbers in ascending order, each within
//                     [1, trip.Capacity].
//  TotalAmountCents – total price in cents for all seats.
//  Status           – lifecycle state.
//  PaymentStatus    – payment state.
//  Reference        – unique human-readable reference code.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Booking struct {
    ID               uint64        `json:"id"`
    TripID           uint64        `json:"trip_id"`
    UserID           uint64        `json:"user_id"`
    Seats            []int         `json:"seats"`
    TotalAmountCents uint32        `json:"total_amount_cents"`
    Status           BookingStatus `json:"status"`
    PaymentStatus    PaymentStatus `json:"payment_status"`
    Reference        string        `json:"reference"`
    CreatedAt        time.Time     `json:"created_at"`
    UpdatedAt        time.Time     `json:"updated_at"`
}
