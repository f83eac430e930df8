package repository

import (
    "context"
    "database/sql"
    "errors"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"

    "github.com/safarline/booking/internal/booking"
    "github.com/safarline/booking/internal/model"
)

func newMock(t *testing.T) (*BookingRepo, sqlmock.Sqlmock, func()) {
    t.Helper()
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    return NewBookingRepo(db), mock, func() { db.Close() }
}

func TestCommittedSeatsReadsClaims(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectQuery("SELECT seat_number FROM seat_claims").
        WithArgs(uint64(7)).
        WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(2).AddRow(5).AddRow(9))

    seats, err := repo.CommittedSeats(context.Background(), 7)
    if err != nil {
        t.Fatalf("committed seats error: %v", err)
    }
    if len(seats) != 3 {
        t.Fatalf("expected 3 committed seats, got %d", len(seats))
    }
    for _, n := range []int{2, 5, 9} {
        if _, ok := seats[n]; !ok {
            t.Fatalf("seat %d missing from committed set", n)
        }
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreateInsertsBookingSeatsAndClaims(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    now := time.Now().UTC()
    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO bookings").
        WillReturnResult(sqlmock.NewResult(41, 1))
    mock.ExpectExec("INSERT INTO booking_seats").
        WillReturnResult(sqlmock.NewResult(1, 2))
    mock.ExpectExec("INSERT INTO seat_claims").
        WillReturnResult(sqlmock.NewResult(1, 2))
    mock.ExpectQuery("SELECT created_at, updated_at FROM bookings").
        WithArgs(uint64(41)).
        WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
    mock.ExpectCommit()

    b, err := repo.Create(context.Background(), 7, 3, []int{12, 4}, 5000)
    if err != nil {
        t.Fatalf("create error: %v", err)
    }
    if b.ID != 41 {
        t.Fatalf("expected booking id 41, got %d", b.ID)
    }
    if b.Status != model.BookingStatusPending || b.PaymentStatus != model.PaymentStatusPending {
        t.Fatalf("new booking must start pending/pending, got %s/%s", b.Status, b.PaymentStatus)
    }
    if len(b.Seats) != 2 || b.Seats[0] != 4 || b.Seats[1] != 12 {
        t.Fatalf("seats not sorted ascending: %v", b.Seats)
    }
    if b.Reference == "" {
        t.Fatalf("reference code not populated")
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreateSeatClaimCollisionIsSeatConflict(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO bookings").
        WillReturnResult(sqlmock.NewResult(42, 1))
    mock.ExpectExec("INSERT INTO booking_seats").
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec("INSERT INTO seat_claims").
        WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '7-12' for key 'seat_claims.uk_trip_seat'"})
    mock.ExpectRollback()

    _, err := repo.Create(context.Background(), 7, 3, []int{12}, 2500)
    if !errors.Is(err, booking.ErrSeatConflict) {
        t.Fatalf("expected ErrSeatConflict, got %v", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreateRetriesReferenceCollision(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    now := time.Now().UTC()
    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO bookings").
        WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'SFB-AAAAAA' for key 'bookings.uk_bookings_reference'"})
    mock.ExpectExec("INSERT INTO bookings").
        WillReturnResult(sqlmock.NewResult(43, 1))
    mock.ExpectExec("INSERT INTO booking_seats").
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec("INSERT INTO seat_claims").
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectQuery("SELECT created_at, updated_at FROM bookings").
        WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
    mock.ExpectCommit()

    b, err := repo.Create(context.Background(), 7, 3, []int{1}, 2500)
    if err != nil {
        t.Fatalf("create error: %v", err)
    }
    if b.ID != 43 {
        t.Fatalf("expected booking id 43, got %d", b.ID)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestGetByIDLoadsSeats(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    now := time.Now().UTC()
    mock.ExpectQuery("SELECT id, trip_id, user_id").
        WithArgs(uint64(41)).
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "trip_id", "user_id", "status", "payment_status",
            "total_amount_cents", "reference", "created_at", "updated_at",
        }).AddRow(41, 7, 3, "confirmed", "completed", 5000, "SFB-9F3A2C", now, now))
    mock.ExpectQuery("SELECT seat_number FROM booking_seats").
        WithArgs(uint64(41)).
        WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(4).AddRow(12))

    b, err := repo.GetByID(context.Background(), 41)
    if err != nil {
        t.Fatalf("get error: %v", err)
    }
    if b.Status != model.BookingStatusConfirmed || b.PaymentStatus != model.PaymentStatusCompleted {
        t.Fatalf("unexpected status %s/%s", b.Status, b.PaymentStatus)
    }
    if len(b.Seats) != 2 || b.Seats[0] != 4 || b.Seats[1] != 12 {
        t.Fatalf("unexpected seats %v", b.Seats)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestGetByReferenceMissing(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectQuery("SELECT id, trip_id, user_id").
        WithArgs("SFB-NOPE01").
        WillReturnError(sql.ErrNoRows)

    _, err := repo.GetByReference(context.Background(), "SFB-NOPE01")
    if !errors.Is(err, booking.ErrBookingNotFound) {
        t.Fatalf("expected ErrBookingNotFound, got %v", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestTransitionStatusConditionalUpdate(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusConfirmed, uint64(9), model.BookingStatusPending).
        WillReturnResult(sqlmock.NewResult(0, 1))

    moved, err := repo.TransitionStatus(context.Background(), 9, model.BookingStatusPending, model.BookingStatusConfirmed)
    if err != nil {
        t.Fatalf("transition error: %v", err)
    }
    if !moved {
        t.Fatalf("expected transition to report moved")
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestTransitionStatusAlreadyMovedIsNoOp(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectExec("UPDATE bookings SET status").
        WillReturnResult(sqlmock.NewResult(0, 0))

    moved, err := repo.TransitionStatus(context.Background(), 9, model.BookingStatusPending, model.BookingStatusExpired)
    if err != nil {
        t.Fatalf("transition error: %v", err)
    }
    if moved {
        t.Fatalf("row already moved should be a no-op, not a transition")
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestTransitionStatusRejectsIllegalMove(t *testing.T) {
    repo, _, done := newMock(t)
    defer done()

    _, err := repo.TransitionStatus(context.Background(), 9, model.BookingStatusCancelled, model.BookingStatusConfirmed)
    if !errors.Is(err, booking.ErrInvalidTransition) {
        t.Fatalf("expected ErrInvalidTransition, got %v", err)
    }
}

func TestTransitionAndReleaseIsOneTransaction(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectBegin()
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusCancelled, uint64(9), model.BookingStatusConfirmed).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("DELETE FROM seat_claims").
        WithArgs(uint64(7), uint64(9)).
        WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectCommit()

    moved, err := repo.TransitionAndRelease(context.Background(), 7, 9, model.BookingStatusConfirmed, model.BookingStatusCancelled)
    if err != nil {
        t.Fatalf("transition error: %v", err)
    }
    if !moved {
        t.Fatalf("expected the row to move")
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestTransitionAndReleaseAlreadyMovedRollsBack(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    mock.ExpectBegin()
    mock.ExpectExec("UPDATE bookings SET status").
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    moved, err := repo.TransitionAndRelease(context.Background(), 7, 9, model.BookingStatusPending, model.BookingStatusExpired)
    if err != nil {
        t.Fatalf("transition error: %v", err)
    }
    if moved {
        t.Fatalf("row already moved must be a no-op")
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestTransitionAndReleaseRejectsIllegalMove(t *testing.T) {
    repo, _, done := newMock(t)
    defer done()

    _, err := repo.TransitionAndRelease(context.Background(), 7, 9, model.BookingStatusExpired, model.BookingStatusConfirmed)
    if !errors.Is(err, booking.ErrInvalidTransition) {
        t.Fatalf("expected ErrInvalidTransition, got %v", err)
    }
}

func TestExpirePendingSkipsRowsMovedConcurrently(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    cutoff := time.Now().UTC().Add(-10 * time.Minute)
    mock.ExpectQuery("SELECT id, trip_id FROM bookings").
        WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id"}).
            AddRow(11, 7).
            AddRow(12, 7))
    // First candidate still pending: moved and claims released.
    mock.ExpectBegin()
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusExpired, uint64(11), model.BookingStatusPending).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("DELETE FROM seat_claims").
        WithArgs(uint64(7), uint64(11)).
        WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectCommit()
    // Second candidate was confirmed in the meantime: no-op.
    mock.ExpectBegin()
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusExpired, uint64(12), model.BookingStatusPending).
        WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    n, err := repo.ExpirePending(context.Background(), cutoff)
    if err != nil {
        t.Fatalf("expire pending error: %v", err)
    }
    if n != 1 {
        t.Fatalf("expected 1 expired booking, got %d", n)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

// A failed claim release must roll the status move back with it, so
// the row stays pending and the next sweep picks it up again instead
// of leaving the seats committed by an expired booking forever.
func TestExpirePendingRetriesRowAfterFailedRelease(t *testing.T) {
    repo, mock, done := newMock(t)
    defer done()

    cutoff := time.Now().UTC().Add(-10 * time.Minute)

    // First pass: the DELETE fails, everything rolls back.
    mock.ExpectQuery("SELECT id, trip_id FROM bookings").
        WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id"}).AddRow(11, 7))
    mock.ExpectBegin()
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusExpired, uint64(11), model.BookingStatusPending).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("DELETE FROM seat_claims").
        WillReturnError(errors.New("connection reset"))
    mock.ExpectRollback()

    n, err := repo.ExpirePending(context.Background(), cutoff)
    if err == nil {
        t.Fatalf("expected the failed release to surface an error")
    }
    if n != 0 {
        t.Fatalf("rolled-back row must not count as expired, got %d", n)
    }

    // Second pass: the row is still pending, selected again and fully
    // released this time.
    mock.ExpectQuery("SELECT id, trip_id FROM bookings").
        WillReturnRows(sqlmock.NewRows([]string{"id", "trip_id"}).AddRow(11, 7))
    mock.ExpectBegin()
    mock.ExpectExec("UPDATE bookings SET status").
        WithArgs(model.BookingStatusExpired, uint64(11), model.BookingStatusPending).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec("DELETE FROM seat_claims").
        WithArgs(uint64(7), uint64(11)).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    n, err = repo.ExpirePending(context.Background(), cutoff)
    if err != nil {
        t.Fatalf("second pass error: %v", err)
    }
    if n != 1 {
        t.Fatalf("expected the retried row to expire, got %d", n)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
