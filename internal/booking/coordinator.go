package booking

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "time"

    "github.com/safarline/booking/internal/model"
)

// SeatLedger is the durable source of truth for committed seat
// allocations.  Implementations must guarantee that Create fails with
// ErrSeatConflict when any requested seat is already committed, via a
// uniqueness constraint or an equivalent transactional check.
type SeatLedger interface {
    // CommittedSeats returns the union of seat numbers across all
    // bookings for the trip whose status is pending or confirmed.
    CommittedSeats(ctx context.Context, tripID uint64) (map[int]struct{}, error)
    // Create inserts a new pending booking with a fresh reference
    // code.  It returns ErrSeatConflict when a seat is already
    // committed at insertion time.
    Create(ctx context.Context, tripID, userID uint64, seats []int, totalCents uint32) (*model.Booking, error)
    // GetByID loads a booking by primary key; ErrBookingNotFound when absent.
    GetByID(ctx context.Context, bookingID uint64) (*model.Booking, error)
    // TransitionStatus moves a booking from one status to another
    // with a conditional update keyed on the current status.  It
    // returns (false, nil) when the row was not in `from` anymore,
    // so concurrent sweeps treat an already-moved row as a no-op.
    // Illegal transitions are rejected with ErrInvalidTransition.
    TransitionStatus(ctx context.Context, bookingID uint64, from, to model.BookingStatus) (bool, error)
    // SetPaymentStatus records the outcome of a payment attempt.
    SetPaymentStatus(ctx context.Context, bookingID uint64, status model.PaymentStatus) error
    // TransitionAndRelease moves a booking out of the active states
    // and frees its seats in the same atomic step, so a failure leaves
    // the row in its previous status instead of stranding the claims.
    // Conditional like TransitionStatus; (false, nil) when the row was
    // not in `from` anymore.
    TransitionAndRelease(ctx context.Context, tripID, bookingID uint64, from, to model.BookingStatus) (bool, error)
    // ExpirePending sweeps pending, unpaid bookings created before
    // the deadline into expired and releases their seats.  It is
    // idempotent and safe to run concurrently with itself.
    ExpirePending(ctx context.Context, olderThan time.Time) (int, error)
}

// HoldStore is the ephemeral, TTL-bound store of in-progress seat
// claims.  Create is the only operation with a strong guarantee: the
// check-then-write must be indivisible with respect to concurrent
// Create/Release calls on the same trip.  ActiveSeats is a
// best-effort snapshot used for availability display only.
type HoldStore interface {
    ActiveSeats(ctx context.Context, tripID uint64) (map[int]struct{}, error)
    Create(ctx context.Context, tripID, userID uint64, seats []int, ttl time.Duration) (*model.SeatHold, error)
    Get(ctx context.Context, tripID uint64, holdID string) (*model.SeatHold, error)
    Release(ctx context.Context, tripID uint64, holdID string) error
    // Sweep garbage-collects expired holds across all trips.  It
    // exists to bound storage growth, not for correctness: expired
    // holds are excluded from reads even without it.
    Sweep(ctx context.Context) (int, error)
}

// TripSource provides read-only trip reference data owned by the
// fleet-management collaborator.
type TripSource interface {
    GetTrip(ctx context.Context, tripID uint64) (*model.Trip, error)
}

// PaymentVerifier validates a payment confirmation token.  Gateway
// integration lives outside the booking core; the coordinator only
// cares whether the charge for the given amount went through.
type PaymentVerifier interface {
    Verify(ctx context.Context, userID uint64, amountCents uint32, token string) error
}

// EventPublisher emits booking lifecycle events to the notification
// dispatcher.  Publish failures must never fail the request; they are
// logged by the implementation and otherwise ignored.
type EventPublisher interface {
    BookingConfirmed(ctx context.Context, b *model.Booking, t *model.Trip)
    BookingCancelled(ctx context.Context, b *model.Booking, t *model.Trip)
}

// Availability is the result of a pure availability read: the union
// of ledger-committed and live-held seats subtracted from the trip's
// seat range.  It can be stale by the time the caller acts; each
// stateful step re-validates.
type Availability struct {
    TripID    uint64 `json:"trip_id"`
    Capacity  int    `json:"total"`
    Available []int  `json:"available"`
    Committed []int  `json:"committed"`
    Held      []int  `json:"held"`
}

const (
    defaultHoldTTL      = 10 * time.Minute
    defaultPendingGrace = 10 * time.Minute
    defaultCancelCutoff = 2 * time.Hour
)

// Coordinator orchestrates the seat ledger and hold store.  It is the
// only component with business rules; it holds no locks across store
// calls and is safe for use from arbitrarily many request goroutines.
type Coordinator struct {
    trips    TripSource
    ledger   SeatLedger
    holds    HoldStore
    payments PaymentVerifier
    events   EventPublisher

    holdTTL      time.Duration
    pendingGrace time.Duration
    cancelCutoff time.Duration
    now          func() time.Time
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithHoldTTL overrides the default 10 minute hold TTL.
func WithHoldTTL(d time.Duration) Option {
    return func(c *Coordinator) {
        if d > 0 {
            c.holdTTL = d
        }
    }
}

// WithPendingGrace overrides the grace period after which unpaid
// pending bookings are swept to expired.
func WithPendingGrace(d time.Duration) Option {
    return func(c *Coordinator) {
        if d > 0 {
            c.pendingGrace = d
        }
    }
}

// WithCancelCutoff overrides the no-cancellation window before departure.
func WithCancelCutoff(d time.Duration) Option {
    return func(c *Coordinator) {
        if d > 0 {
            c.cancelCutoff = d
        }
    }
}

// WithEvents attaches an event publisher.  Without one, lifecycle
// events are silently skipped.
func WithEvents(p EventPublisher) Option {
    return func(c *Coordinator) { c.events = p }
}

// WithClock overrides the time source; tests use this to control expiry.
func WithClock(now func() time.Time) Option {
    return func(c *Coordinator) {
        if now != nil {
            c.now = now
        }
    }
}

// New constructs a Coordinator over the given collaborators.  trips,
// ledger, holds and payments must be non-nil.
func New(trips TripSource, ledger SeatLedger, holds HoldStore, payments PaymentVerifier, opts ...Option) *Coordinator {
    if trips == nil || ledger == nil || holds == nil || payments == nil {
        panic("nil collaborator passed to booking.New")
    }
    c := &Coordinator{
        trips:        trips,
        ledger:       ledger,
        holds:        holds,
        payments:     payments,
        holdTTL:      defaultHoldTTL,
        pendingGrace: defaultPendingGrace,
        cancelCutoff: defaultCancelCutoff,
        now:          func() time.Time { return time.Now().UTC() },
    }
    for _, opt := range opts {
        opt(c)
    }
    return c
}

// Availability computes the seat map for a trip: committed seats from
// the ledger, held seats from the hold store, and everything else in
// [1, capacity] as available.  Pure read, no side effects.
func (c *Coordinator) Availability(ctx context.Context, tripID uint64) (*Availability, error) {
    trip, err := c.trips.GetTrip(ctx, tripID)
    if err != nil {
        return nil, err
    }
    committed, err := c.ledger.CommittedSeats(ctx, tripID)
    if err != nil {
        return nil, fmt.Errorf("read committed seats: %w", err)
    }
    held, err := c.holds.ActiveSeats(ctx, tripID)
    if err != nil {
        return nil, fmt.Errorf("read active holds: %w", err)
    }
    av := &Availability{
        TripID:    tripID,
        Capacity:  trip.Capacity,
        Available: make([]int, 0, trip.Capacity),
        Committed: sortedSeats(committed),
        Held:      sortedSeats(held),
    }
    for n := 1; n <= trip.Capacity; n++ {
        if _, ok := committed[n]; ok {
            continue
        }
        if _, ok := held[n]; ok {
            continue
        }
        av.Available = append(av.Available, n)
    }
    return av, nil
}

// RequestHold validates the request and claims the seats in the hold
// store.  This is the only seat-safety checkpoint that matters for
// preventing double-booking between concurrent users; everything
// downstream re-validates but needs no locking of its own.
func (c *Coordinator) RequestHold(ctx context.Context, tripID, userID uint64, seats []int) (*model.SeatHold, error) {
    trip, err := c.trips.GetTrip(ctx, tripID)
    if err != nil {
        return nil, err
    }
    if !trip.Bookable() {
        return nil, ErrTripNotBookable
    }
    normalized, err := validateSeats(seats, trip.Capacity)
    if err != nil {
        return nil, err
    }
    // Seats already committed in the ledger are rejected up front so
    // the caller gets a useful conflict list instead of a doomed hold.
    committed, err := c.ledger.CommittedSeats(ctx, tripID)
    if err != nil {
        return nil, fmt.Errorf("read committed seats: %w", err)
    }
    if conflicts := intersect(normalized, committed); len(conflicts) > 0 {
        return nil, &SeatNotAvailableError{Seats: conflicts}
    }
    hold, err := c.holds.Create(ctx, tripID, userID, normalized, c.holdTTL)
    if err != nil {
        var hc *HoldConflictError
        if errors.As(err, &hc) {
            return nil, &SeatNotAvailableError{Seats: hc.Seats}
        }
        return nil, err
    }
    return hold, nil
}

// ConfirmBooking promotes a hold into a ledger entry.  The ledger
// write happens before the hold release: if the process crashes
// between the two steps the seats stay protected by whichever
// structure survives, never unprotected.  Payment verification runs
// after the seats are durably claimed; on decline the booking stays
// pending so the user can retry payment on the same seats within the
// grace window.
func (c *Coordinator) ConfirmBooking(ctx context.Context, tripID uint64, holdID string, userID uint64, paymentToken string) (*model.Booking, error) {
    trip, err := c.trips.GetTrip(ctx, tripID)
    if err != nil {
        return nil, err
    }
    hold, err := c.holds.Get(ctx, tripID, holdID)
    if err != nil {
        return nil, fmt.Errorf("load hold: %w", err)
    }
    if hold == nil || hold.UserID != userID {
        return nil, ErrHoldNotFound
    }
    total := trip.FareCents * uint32(len(hold.Seats))
    b, err := c.ledger.Create(ctx, tripID, userID, hold.Seats, total)
    if err != nil {
        if IsContention(err) {
            // The hold store and the ledger disagree; expected-rare.
            // Drop the stale hold so the seats it shadows can recover.
            _ = c.holds.Release(ctx, tripID, holdID)
            return nil, &SeatNotAvailableError{Seats: c.ledgerConflicts(ctx, tripID, hold.Seats)}
        }
        return nil, fmt.Errorf("create booking: %w", err)
    }
    if err := c.holds.Release(ctx, tripID, holdID); err != nil {
        // The ledger row already protects the seats; the hold will
        // age out on its own TTL.
        _ = err
    }
    return c.settlePayment(ctx, b, trip, paymentToken)
}

// RetryPayment re-runs payment verification for a pending booking
// whose earlier payment attempt failed.  Allowed until the pending
// sweep expires the booking.
func (c *Coordinator) RetryPayment(ctx context.Context, bookingID, userID uint64, paymentToken string) (*model.Booking, error) {
    b, err := c.ledger.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if b.UserID != userID {
        return nil, ErrBookingNotFound
    }
    if b.Status != model.BookingStatusPending {
        return nil, ErrInvalidTransition
    }
    trip, err := c.trips.GetTrip(ctx, b.TripID)
    if err != nil {
        return nil, err
    }
    return c.settlePayment(ctx, b, trip, paymentToken)
}

// settlePayment verifies the token and finalises the pending booking.
func (c *Coordinator) settlePayment(ctx context.Context, b *model.Booking, trip *model.Trip, paymentToken string) (*model.Booking, error) {
    if err := c.payments.Verify(ctx, b.UserID, b.TotalAmountCents, paymentToken); err != nil {
        if perr := c.ledger.SetPaymentStatus(ctx, b.ID, model.PaymentStatusFailed); perr != nil {
            return nil, fmt.Errorf("record payment failure: %w", perr)
        }
        b.PaymentStatus = model.PaymentStatusFailed
        return b, ErrPaymentDeclined
    }
    moved, err := c.ledger.TransitionStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusConfirmed)
    if err != nil {
        return nil, fmt.Errorf("confirm booking: %w", err)
    }
    if !moved {
        // The pending sweep got there first; the payment collaborator
        // is expected to refund out of band.
        return nil, ErrInvalidTransition
    }
    if err := c.ledger.SetPaymentStatus(ctx, b.ID, model.PaymentStatusCompleted); err != nil {
        return nil, fmt.Errorf("record payment: %w", err)
    }
    b.Status = model.BookingStatusConfirmed
    b.PaymentStatus = model.PaymentStatusCompleted
    if c.events != nil {
        c.events.BookingConfirmed(ctx, b, trip)
    }
    return b, nil
}

// ReleaseHold removes a hold before its natural expiry.
func (c *Coordinator) ReleaseHold(ctx context.Context, tripID uint64, holdID string) error {
    return c.holds.Release(ctx, tripID, holdID)
}

// CancelBooking cancels a booking owned by userID, enforcing the
// cancellation cutoff before departure.  Cancelling releases the
// booking's seat claims so they reappear in availability.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, userID uint64) (*model.Booking, error) {
    b, err := c.ledger.GetByID(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if b.UserID != userID {
        return nil, ErrBookingNotFound
    }
    if !b.Status.CanTransitionTo(model.BookingStatusCancelled) {
        return nil, ErrInvalidTransition
    }
    trip, err := c.trips.GetTrip(ctx, b.TripID)
    if err != nil {
        return nil, err
    }
    if c.now().After(trip.DepartsAt.Add(-c.cancelCutoff)) {
        return nil, ErrCancellationWindowClosed
    }
    moved, err := c.ledger.TransitionAndRelease(ctx, b.TripID, b.ID, b.Status, model.BookingStatusCancelled)
    if err != nil {
        return nil, fmt.Errorf("cancel booking: %w", err)
    }
    if !moved {
        return nil, ErrInvalidTransition
    }
    b.Status = model.BookingStatusCancelled
    if c.events != nil {
        c.events.BookingCancelled(ctx, b, trip)
    }
    return b, nil
}

// SweepExpired expires unpaid pending bookings past the grace period
// and garbage-collects expired holds.  Safe to run concurrently with
// itself: both halves operate on conditional updates and snapshots.
func (c *Coordinator) SweepExpired(ctx context.Context) (bookings, holds int, err error) {
    bookings, err = c.ledger.ExpirePending(ctx, c.now().Add(-c.pendingGrace))
    if err != nil {
        return 0, 0, fmt.Errorf("expire pending bookings: %w", err)
    }
    holds, err = c.holds.Sweep(ctx)
    if err != nil {
        return bookings, 0, fmt.Errorf("sweep holds: %w", err)
    }
    return bookings, holds, nil
}

// ledgerConflicts re-reads committed seats to name the conflicting
// ones in an error message.  Display only; correctness does not
// depend on this read.
func (c *Coordinator) ledgerConflicts(ctx context.Context, tripID uint64, seats []int) []int {
    committed, err := c.ledger.CommittedSeats(ctx, tripID)
    if err != nil {
        return seats
    }
    if conflicts := intersect(seats, committed); len(conflicts) > 0 {
        return conflicts
    }
    return seats
}

// validateSeats checks structural validity of a seat request and
// returns the seat numbers sorted ascending.  Duplicates are an
// error, not silently deduplicated: a request that asks for the same
// seat twice is malformed.
func validateSeats(seats []int, capacity int) ([]int, error) {
    if len(seats) == 0 {
        return nil, &InvalidSeatRequestError{Reason: "no seats requested"}
    }
    seen := make(map[int]struct{}, len(seats))
    out := make([]int, 0, len(seats))
    for _, n := range seats {
        if n < 1 || n > capacity {
            return nil, &InvalidSeatRequestError{Reason: fmt.Sprintf("seat %d out of range 1..%d", n, capacity)}
        }
        if _, dup := seen[n]; dup {
            return nil, &InvalidSeatRequestError{Reason: fmt.Sprintf("seat %d requested twice", n)}
        }
        seen[n] = struct{}{}
        out = append(out, n)
    }
    sort.Ints(out)
    return out, nil
}

func sortedSeats(set map[int]struct{}) []int {
    out := make([]int, 0, len(set))
    for n := range set {
        out = append(out, n)
    }
    sort.Ints(out)
    return out
}

func intersect(seats []int, set map[int]struct{}) []int {
    var out []int
    for _, n := range seats {
        if _, ok := set[n]; ok {
            out = append(out, n)
        }
    }
    return out
}
