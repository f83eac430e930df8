package repository

import (
    "context"
    "crypto/rand"
    "database/sql"
    "encoding/hex"
    "errors"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/safarline/booking/internal/booking"
    "github.com/safarline/booking/internal/model"
)

// BookingRepo is the durable seat ledger.  Bookings live in the
// bookings table, their per-seat detail in booking_seats (kept for
// audit regardless of status), and the currently committed seats in
// seat_claims.  seat_claims holds exactly one row per (trip, seat)
// for bookings in pending or confirmed and carries a unique index on
// that pair, so a true collision fails the INSERT.  The index is the
// last line of defense behind the hold store.  All timestamps are
// stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for callers that need to open
// their own transactions.
func (r *BookingRepo) DB() *sql.DB { return r.db }

// referenceAttempts bounds the retry loop for reference-code collisions.
const referenceAttempts = 5

// CommittedSeats returns the union of seat numbers across all
// bookings for the trip whose status is pending or confirmed,
// straight from the seat_claims table.
func (r *BookingRepo) CommittedSeats(ctx context.Context, tripID uint64) (map[int]struct{}, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT seat_number FROM seat_claims WHERE trip_id = ?`, tripID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    seats := make(map[int]struct{})
    for rows.Next() {
        var n int
        if err := rows.Scan(&n); err != nil {
            return nil, err
        }
        seats[n] = struct{}{}
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return seats, nil
}

// Create inserts a new pending booking together with its seat rows
// and seat claims in a single transaction.  A reference-code
// collision retries with a fresh code; a seat-claim collision means
// another booking already committed one of the seats and surfaces as
// booking.ErrSeatConflict with nothing persisted.
func (r *BookingRepo) Create(ctx context.Context, tripID, userID uint64, seats []int, totalCents uint32) (*model.Booking, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return nil, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    b := &model.Booking{
        TripID:           tripID,
        UserID:           userID,
        Seats:            append([]int(nil), seats...),
        TotalAmountCents: totalCents,
        Status:           model.BookingStatusPending,
        PaymentStatus:    model.PaymentStatusPending,
    }
    sort.Ints(b.Seats)

    const ins = `INSERT INTO bookings (trip_id, user_id, status, payment_status, total_amount_cents, reference)
                 VALUES (?, ?, ?, ?, ?, ?)`
    for attempt := 0; ; attempt++ {
        ref, err := newReference()
        if err != nil {
            return nil, err
        }
        res, err := tx.ExecContext(ctx, ins, tripID, userID, b.Status, b.PaymentStatus, totalCents, ref)
        if err != nil {
            if isDuplicate(err, "reference") && attempt < referenceAttempts-1 {
                continue
            }
            return nil, err
        }
        id, err := res.LastInsertId()
        if err != nil {
            return nil, err
        }
        b.ID = uint64(id)
        b.Reference = ref
        break
    }

    if err := insertSeatRows(ctx, tx,
        `INSERT INTO booking_seats (booking_id, trip_id, seat_number) VALUES `,
        b.ID, tripID, b.Seats); err != nil {
        return nil, err
    }
    if err := insertClaimRows(ctx, tx, tripID, b.ID, b.Seats); err != nil {
        if isDuplicate(err, "") {
            return nil, booking.ErrSeatConflict
        }
        return nil, err
    }

    // Query the row back so the caller sees DB-assigned timestamps.
    const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
    if err := tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
        return nil, err
    }
    if err := tx.Commit(); err != nil {
        return nil, err
    }
    committed = true
    return b, nil
}

// GetByID loads a booking and its seats.  It returns
// booking.ErrBookingNotFound when no row exists.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID uint64) (*model.Booking, error) {
    const q = `SELECT id, trip_id, user_id, status, payment_status, total_amount_cents, reference, created_at, updated_at
               FROM bookings WHERE id = ?`
    return r.getOne(ctx, q, bookingID)
}

// GetByReference loads a booking by its reference code.
func (r *BookingRepo) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
    const q = `SELECT id, trip_id, user_id, status, payment_status, total_amount_cents, reference, created_at, updated_at
               FROM bookings WHERE reference = ?`
    return r.getOne(ctx, q, reference)
}

func (r *BookingRepo) getOne(ctx context.Context, query string, arg interface{}) (*model.Booking, error) {
    var b model.Booking
    var status, payStatus string
    err := r.db.QueryRowContext(ctx, query, arg).Scan(
        &b.ID, &b.TripID, &b.UserID, &status, &payStatus,
        &b.TotalAmountCents, &b.Reference, &b.CreatedAt, &b.UpdatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, booking.ErrBookingNotFound
    }
    if err != nil {
        return nil, err
    }
    b.Status = model.BookingStatus(status)
    b.PaymentStatus = model.PaymentStatus(payStatus)
    if b.Seats, err = r.seatsFor(ctx, b.ID); err != nil {
        return nil, err
    }
    return &b, nil
}

func (r *BookingRepo) seatsFor(ctx context.Context, bookingID uint64) ([]int, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT seat_number FROM booking_seats WHERE booking_id = ? ORDER BY seat_number`, bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    seats := make([]int, 0, 4)
    for rows.Next() {
        var n int
        if err := rows.Scan(&n); err != nil {
            return nil, err
        }
        seats = append(seats, n)
    }
    return seats, rows.Err()
}

// ListByUser returns all bookings for the given user, newest first,
// with their seat lists populated in a single follow-up query.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    const q = `SELECT id, trip_id, user_id, status, payment_status, total_amount_cents, reference, created_at, updated_at
               FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Booking, 0)
    index := make(map[uint64]int)
    for rows.Next() {
        var b model.Booking
        var status, payStatus string
        if err := rows.Scan(
            &b.ID, &b.TripID, &b.UserID, &status, &payStatus,
            &b.TotalAmountCents, &b.Reference, &b.CreatedAt, &b.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        b.Status = model.BookingStatus(status)
        b.PaymentStatus = model.PaymentStatus(payStatus)
        b.Seats = []int{}
        index[b.ID] = len(out)
        out = append(out, b)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    if len(out) == 0 {
        return out, nil
    }
    ids := make([]interface{}, 0, len(out))
    placeholders := make([]string, 0, len(out))
    for _, b := range out {
        ids = append(ids, b.ID)
        placeholders = append(placeholders, "?")
    }
    seatQ := `SELECT booking_id, seat_number FROM booking_seats
              WHERE booking_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY booking_id, seat_number`
    srows, err := r.db.QueryContext(ctx, seatQ, ids...)
    if err != nil {
        return nil, err
    }
    defer srows.Close()
    for srows.Next() {
        var bid uint64
        var n int
        if err := srows.Scan(&bid, &n); err != nil {
            return nil, err
        }
        if i, ok := index[bid]; ok {
            out[i].Seats = append(out[i].Seats, n)
        }
    }
    return out, srows.Err()
}

// TransitionStatus moves a booking from one lifecycle status to
// another.  Illegal transitions are rejected before touching the
// database.  The UPDATE is conditional on the current status, so a
// row that another sweep or request already moved reports (false,
// nil) instead of an error.
func (r *BookingRepo) TransitionStatus(ctx context.Context, bookingID uint64, from, to model.BookingStatus) (bool, error) {
    if !from.CanTransitionTo(to) {
        return false, booking.ErrInvalidTransition
    }
    res, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        to, bookingID, from)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// SetPaymentStatus records the outcome of a payment attempt.
func (r *BookingRepo) SetPaymentStatus(ctx context.Context, bookingID uint64, status model.PaymentStatus) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET payment_status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
        status, bookingID)
    return err
}

// TransitionAndRelease moves a booking out of the active states and
// deletes its seat_claims rows in one transaction, so the seats
// reappear in CommittedSeats-based availability exactly when the
// status change lands.  A failure after the UPDATE rolls both back,
// leaving the row in its previous status for a later retry or sweep
// instead of stranding the claims.  Like TransitionStatus it is
// conditional on the current status and reports an already-moved row
// as (false, nil).  booking_seats rows stay for audit.
func (r *BookingRepo) TransitionAndRelease(ctx context.Context, tripID, bookingID uint64, from, to model.BookingStatus) (bool, error) {
    if !from.CanTransitionTo(to) {
        return false, booking.ErrInvalidTransition
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    res, err := tx.ExecContext(ctx,
        `UPDATE bookings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status = ?`,
        to, bookingID, from)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    if n == 0 {
        return false, nil
    }
    if _, err := tx.ExecContext(ctx,
        `DELETE FROM seat_claims WHERE trip_id = ? AND booking_id = ?`, tripID, bookingID); err != nil {
        return false, err
    }
    if err := tx.Commit(); err != nil {
        return false, err
    }
    committed = true
    return true, nil
}

// ExpirePending sweeps unpaid pending bookings created before the
// deadline into expired.  Each row's status move and claim release
// happen in one transaction via TransitionAndRelease; a row another
// sweep or a confirm already moved is skipped, so the whole pass is
// idempotent.
func (r *BookingRepo) ExpirePending(ctx context.Context, olderThan time.Time) (int, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, trip_id FROM bookings
         WHERE status = ? AND payment_status IN (?, ?) AND created_at <= ?`,
        model.BookingStatusPending, model.PaymentStatusPending, model.PaymentStatusFailed,
        olderThan.UTC().Format("2006-01-02 15:04:05"))
    if err != nil {
        return 0, err
    }
    type candidate struct{ id, tripID uint64 }
    var cands []candidate
    for rows.Next() {
        var c candidate
        if err := rows.Scan(&c.id, &c.tripID); err != nil {
            rows.Close()
            return 0, err
        }
        cands = append(cands, c)
    }
    if err := rows.Close(); err != nil {
        return 0, err
    }
    expired := 0
    for _, c := range cands {
        moved, err := r.TransitionAndRelease(ctx, c.tripID, c.id, model.BookingStatusPending, model.BookingStatusExpired)
        if err != nil {
            return expired, err
        }
        if moved {
            expired++
        }
    }
    return expired, nil
}

// insertSeatRows bulk-inserts (booking_id, trip_id, seat_number)
// tuples using a single multi-row statement.
func insertSeatRows(ctx context.Context, tx *sql.Tx, prefix string, bookingID, tripID uint64, seats []int) error {
    query := prefix
    args := make([]interface{}, 0, len(seats)*3)
    for i, n := range seats {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?)"
        args = append(args, bookingID, tripID, n)
    }
    _, err := tx.ExecContext(ctx, query, args...)
    return err
}

func insertClaimRows(ctx context.Context, tx *sql.Tx, tripID, bookingID uint64, seats []int) error {
    query := `INSERT INTO seat_claims (trip_id, seat_number, booking_id) VALUES `
    args := make([]interface{}, 0, len(seats)*3)
    for i, n := range seats {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?)"
        args = append(args, tripID, n, bookingID)
    }
    _, err := tx.ExecContext(ctx, query, args...)
    return err
}

// isDuplicate reports whether err is a MySQL duplicate-entry error
// (1062), optionally narrowed to a key whose name contains keyHint.
func isDuplicate(err error, keyHint string) bool {
    var me *mysql.MySQLError
    if !errors.As(err, &me) || me.Number != 1062 {
        return false
    }
    if keyHint == "" {
        return true
    }
    return strings.Contains(me.Message, keyHint)
}

// newReference generates a short human-readable booking reference
// like "SFB-9F3A2C". Uniqueness is enforced by the DB; Create retries
// on the rare collision.
func newReference() (string, error) {
    b := make([]byte, 3)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return fmt.Sprintf("SFB-%s", strings.ToUpper(hex.EncodeToString(b))), nil
}
