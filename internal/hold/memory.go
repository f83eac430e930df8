package hold

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"

    "github.com/safarline/booking/internal/booking"
    "github.com/safarline/booking/internal/model"
)

// MemoryStore is an in-process hold store with the same contract as
// RedisStore.  The server falls back to it when no Redis endpoint is
// configured (single-instance deployments), and tests use it to
// exercise the coordinator without external services.  One mutex
// guards the whole map, making the check-then-write of Create a
// single critical section.
type MemoryStore struct {
    mu    sync.Mutex
    trips map[uint64]map[string]*model.SeatHold
    now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
    return &MemoryStore{
        trips: make(map[uint64]map[string]*model.SeatHold),
        now:   func() time.Time { return time.Now().UTC() },
    }
}

// Create claims the seats for a new hold, pruning expired entries for
// the trip along the way.  Overlap with a live hold returns a
// *booking.HoldConflictError naming the seats.
func (s *MemoryStore) Create(ctx context.Context, tripID, userID uint64, seats []int, ttl time.Duration) (*model.SeatHold, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    now := s.now()
    holds := s.trips[tripID]
    if holds == nil {
        holds = make(map[string]*model.SeatHold)
        s.trips[tripID] = holds
    }
    requested := make(map[int]struct{}, len(seats))
    for _, n := range seats {
        requested[n] = struct{}{}
    }
    conflictSet := make(map[int]struct{})
    for id, h := range holds {
        if h.Expired(now) {
            delete(holds, id)
            continue
        }
        for _, n := range h.Seats {
            if _, ok := requested[n]; ok {
                conflictSet[n] = struct{}{}
            }
        }
    }
    if len(conflictSet) > 0 {
        conflicts := make([]int, 0, len(conflictSet))
        for n := range conflictSet {
            conflicts = append(conflicts, n)
        }
        sort.Ints(conflicts)
        return nil, &booking.HoldConflictError{Seats: conflicts}
    }
    h := &model.SeatHold{
        ID:        uuid.NewString(),
        TripID:    tripID,
        UserID:    userID,
        Seats:     append([]int(nil), seats...),
        CreatedAt: now,
        ExpiresAt: now.Add(ttl),
    }
    holds[h.ID] = h
    out := *h
    return &out, nil
}

// Get returns the hold, or nil when absent or expired.
func (s *MemoryStore) Get(ctx context.Context, tripID uint64, holdID string) (*model.SeatHold, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    h, ok := s.trips[tripID][holdID]
    if !ok {
        return nil, nil
    }
    if h.Expired(s.now()) {
        delete(s.trips[tripID], holdID)
        return nil, nil
    }
    out := *h
    return &out, nil
}

// ActiveSeats returns the union of seats across live holds for the trip.
func (s *MemoryStore) ActiveSeats(ctx context.Context, tripID uint64) (map[int]struct{}, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    seats := make(map[int]struct{})
    for id, h := range s.trips[tripID] {
        if h.Expired(now) {
            delete(s.trips[tripID], id)
            continue
        }
        for _, n := range h.Seats {
            seats[n] = struct{}{}
        }
    }
    return seats, nil
}

// Release removes a hold before its natural expiry.
func (s *MemoryStore) Release(ctx context.Context, tripID uint64, holdID string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    delete(s.trips[tripID], holdID)
    return nil
}

// Sweep deletes expired entries across all trips and empty trip maps.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    removed := 0
    for tripID, holds := range s.trips {
        for id, h := range holds {
            if h.Expired(now) {
                delete(holds, id)
                removed++
            }
        }
        if len(holds) == 0 {
            delete(s.trips, tripID)
        }
    }
    return removed, nil
}
