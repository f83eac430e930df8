package model

import "time"

// TripStatus enumerates the lifecycle states of a scheduled trip.
// Only scheduled and boarding trips accept new bookings.
type TripStatus string

const (
    TripStatusScheduled TripStatus = "scheduled"
    TripStatusBoarding  TripStatus = "boarding"
    TripStatusInTransit TripStatus = "in_transit"
    TripStatusCompleted TripStatus = "completed"
    TripStatusCancelled TripStatus = "cancelled"
)

// Trip represents a scheduled vehicle departure.  The booking core
// treats trips as read-only reference data owned by fleet management;
// it only needs the seat capacity, the per-seat fare, the departure
// time (for the cancellation cutoff) and whether the trip still
// accepts bookings.
//
// Fields:
//  ID          – primary key identifier.
//  Route       – human-readable route label (e.g. "Tehran → Isfahan").
//  Capacity    – total number of numbered seats; seat numbers run
//                from 1 to Capacity inclusive.
//  FareCents   – price of a single seat in cents.
//  Status      – current trip state.
//  DepartsAt   – scheduled departure time (UTC).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Trip struct {
    ID        uint64     // trips.id
    Route     string     // trips.route
    Capacity  int        // trips.capacity
    FareCents uint32     // trips.fare_cents
    Status    TripStatus // trips.status
    DepartsAt time.Time  // trips.departs_at
    CreatedAt time.Time  // trips.created_at
    UpdatedAt time.Time  // trips.updated_at
}

// Bookable reports whether the trip still accepts new bookings.
func (t *Trip) Bookable() bool {
    return t.Status == TripStatusScheduled || t.Status == TripStatusBoarding
}
