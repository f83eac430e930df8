package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/safarline/booking/internal/booking"
    "github.com/safarline/booking/internal/model"
)

// TripRepo provides read-only access to trip reference data.  Trips
// are owned by the fleet-management side of the platform; the booking
// core only ever reads capacity, fare, status and departure time.
type TripRepo struct {
    db *sql.DB
}

// NewTripRepo returns a new TripRepo bound to the provided database.
func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{db: db} }

// GetTrip loads a trip by ID.  It returns booking.ErrTripNotFound
// when no such trip exists.
func (r *TripRepo) GetTrip(ctx context.Context, tripID uint64) (*model.Trip, error) {
    const q = `SELECT id, route, capacity, fare_cents, status, departs_at, created_at, updated_at
               FROM trips WHERE id = ?`
    var t model.Trip
    var status string
    err := r.db.QueryRowContext(ctx, q, tripID).Scan(
        &t.ID, &t.Route, &t.Capacity, &t.FareCents, &status,
        &t.DepartsAt, &t.CreatedAt, &t.UpdatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, booking.ErrTripNotFound
    }
    if err != nil {
        return nil, err
    }
    t.Status = model.TripStatus(status)
    return &t, nil
}
