package model

import "time"

// SeatHold represents a temporary claim on a set of seats while a
// booking attempt is in progress.  Holds prevent concurrent attempts
// from grabbing the same seats during checkout.  A hold is either
// promoted into a Booking (and deleted) or it vanishes when its
// expiry passes; no explicit cleanup is required for correctness.
//
// Fields:
//  ID        – opaque hold identifier returned to the client.
//  TripID    – trip whose seats are held.
//  UserID    – user who created the hold.
//  Seats     – seat numbers claimed, ascending.
//  CreatedAt – when the hold was created.
//  ExpiresAt – when the hold expires.
type SeatHold struct {
    ID        string    `json:"hold_id"`
    TripID    uint64    `json:"trip_id"`
    UserID    uint64    `json:"user_id"`
    Seats     []int     `json:"seats"`
    CreatedAt time.Time `json:"created_at"`
    ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the hold has passed its expiry at the
// given instant.
func (h *SeatHold) Expired(now time.Time) bool {
    return !h.ExpiresAt.After(now)
}
