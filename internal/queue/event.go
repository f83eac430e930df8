// Package queue defines message payloads exchanged over the message broker.
package queue

// BookingConfirmedEvent is published when a booking is successfully
// confirmed.  It carries enough information for downstream consumers
// (ticket email, SMS, analytics) to act without querying the primary
// database.
type BookingConfirmedEvent struct {
    BookingID        uint64 `json:"booking_id"`
    Reference        string `json:"reference"`
    UserID           uint64 `json:"user_id"`
    TripID           uint64 `json:"trip_id"`
    Route            string `json:"route"`
    DepartsAt        string `json:"departs_at"`
    Seats            []int  `json:"seats"`
    TotalAmountCents uint32 `json:"total_amount_cents"`
    ConfirmedAt      string `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled by
// the passenger, so the notification side can confirm the
// cancellation and trigger the refund flow.
type BookingCancelledEvent struct {
    BookingID   uint64 `json:"booking_id"`
    Reference   string `json:"reference"`
    UserID      uint64 `json:"user_id"`
    TripID      uint64 `json:"trip_id"`
    Route       string `json:"route"`
    DepartsAt   string `json:"departs_at"`
    Seats       []int  `json:"seats"`
    CancelledAt string `json:"cancelled_at"`
}
