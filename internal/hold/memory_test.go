package hold

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/safarline/booking/internal/booking"
)

func TestMemoryCreateAndGet(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    h, err := s.Create(ctx, 1, 7, []int{1, 2}, time.Minute)
    if err != nil {
        t.Fatalf("create error: %v", err)
    }
    if h.ID == "" {
        t.Fatalf("hold id not assigned")
    }
    got, err := s.Get(ctx, 1, h.ID)
    if err != nil {
        t.Fatalf("get error: %v", err)
    }
    if got == nil || got.UserID != 7 || len(got.Seats) != 2 {
        t.Fatalf("unexpected hold: %+v", got)
    }
    if got, _ := s.Get(ctx, 1, "no-such-hold"); got != nil {
        t.Fatalf("unknown hold id must return nil")
    }
    if got, _ := s.Get(ctx, 2, h.ID); got != nil {
        t.Fatalf("hold must be scoped to its trip")
    }
}

func TestMemoryCreateConflict(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    if _, err := s.Create(ctx, 1, 7, []int{1, 2, 3}, time.Minute); err != nil {
        t.Fatalf("first create error: %v", err)
    }
    _, err := s.Create(ctx, 1, 8, []int{3, 4}, time.Minute)
    var hc *booking.HoldConflictError
    if !errors.As(err, &hc) {
        t.Fatalf("expected HoldConflictError, got %v", err)
    }
    if len(hc.Seats) != 1 || hc.Seats[0] != 3 {
        t.Fatalf("expected conflict on seat 3 only, got %v", hc.Seats)
    }
    // Same seats on a different trip are unrelated.
    if _, err := s.Create(ctx, 2, 8, []int{3, 4}, time.Minute); err != nil {
        t.Fatalf("different trip must not conflict: %v", err)
    }
}

func TestMemoryConcurrentCreateGrantsEachSeatOnce(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    const clients = 50
    var wg sync.WaitGroup
    var mu sync.Mutex
    owners := make(map[int][]string)
    for i := 0; i < clients; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            seat := i%10 + 1 // 5 clients per seat
            h, err := s.Create(ctx, 1, uint64(i), []int{seat}, time.Minute)
            if err != nil {
                var hc *booking.HoldConflictError
                if !errors.As(err, &hc) {
                    t.Errorf("client %d: unexpected error %v", i, err)
                }
                return
            }
            mu.Lock()
            owners[seat] = append(owners[seat], h.ID)
            mu.Unlock()
        }(i)
    }
    wg.Wait()
    if len(owners) != 10 {
        t.Fatalf("expected every seat granted exactly once, got %d seats", len(owners))
    }
    for seat, ids := range owners {
        if len(ids) != 1 {
            t.Fatalf("seat %d granted %d times", seat, len(ids))
        }
    }
}

func TestMemoryExpiry(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    h, err := s.Create(ctx, 1, 7, []int{5}, 20*time.Millisecond)
    if err != nil {
        t.Fatalf("create error: %v", err)
    }
    time.Sleep(40 * time.Millisecond)

    if got, _ := s.Get(ctx, 1, h.ID); got != nil {
        t.Fatalf("expired hold must read as absent")
    }
    seats, _ := s.ActiveSeats(ctx, 1)
    if len(seats) != 0 {
        t.Fatalf("expired hold must not appear in active seats: %v", seats)
    }
    // The seat is claimable again.
    if _, err := s.Create(ctx, 1, 8, []int{5}, time.Minute); err != nil {
        t.Fatalf("seat must be free after expiry: %v", err)
    }
}

func TestMemoryRelease(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    h, _ := s.Create(ctx, 1, 7, []int{1}, time.Minute)
    if err := s.Release(ctx, 1, h.ID); err != nil {
        t.Fatalf("release error: %v", err)
    }
    if got, _ := s.Get(ctx, 1, h.ID); got != nil {
        t.Fatalf("released hold must be gone")
    }
    // Releasing twice is harmless.
    if err := s.Release(ctx, 1, h.ID); err != nil {
        t.Fatalf("double release error: %v", err)
    }
}

func TestMemoryActiveSeatsUnion(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    s.Create(ctx, 1, 7, []int{1, 2}, time.Minute)
    s.Create(ctx, 1, 8, []int{4}, time.Minute)

    seats, err := s.ActiveSeats(ctx, 1)
    if err != nil {
        t.Fatalf("active seats error: %v", err)
    }
    for _, n := range []int{1, 2, 4} {
        if _, ok := seats[n]; !ok {
            t.Fatalf("seat %d missing from active set %v", n, seats)
        }
    }
    if len(seats) != 3 {
        t.Fatalf("expected 3 active seats, got %v", seats)
    }
}

func TestMemorySweep(t *testing.T) {
    s := NewMemoryStore()
    ctx := context.Background()

    s.Create(ctx, 1, 7, []int{1}, 10*time.Millisecond)
    s.Create(ctx, 2, 8, []int{1}, 10*time.Millisecond)
    live, _ := s.Create(ctx, 2, 9, []int{2}, time.Minute)
    time.Sleep(25 * time.Millisecond)

    removed, err := s.Sweep(ctx)
    if err != nil {
        t.Fatalf("sweep error: %v", err)
    }
    if removed != 2 {
        t.Fatalf("expected 2 removed holds, got %d", removed)
    }
    if got, _ := s.Get(ctx, 2, live.ID); got == nil {
        t.Fatalf("live hold must survive the sweep")
    }
    // Idempotent.
    if removed, _ := s.Sweep(ctx); removed != 0 {
        t.Fatalf("second sweep must remove nothing, got %d", removed)
    }
}
