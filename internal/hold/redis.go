// Package hold implements the ephemeral seat-hold store.  Holds for a
// trip live in a single Redis hash keyed by trip id, mapping hold id
// to a JSON entry; the whole key carries a TTL refreshed on each
// write so abandoned trips' hold data is reclaimed even without a
// sweep.  The check-then-write of hold creation runs as one Lua
// script so it is indivisible with respect to concurrent creates and
// releases on the same trip.
package hold

import (
    "context"
    "encoding/json"
    "fmt"
    "sort"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"

    "github.com/safarline/booking/internal/booking"
    "github.com/safarline/booking/internal/model"
)

// holdEntry is the JSON persistence shape of one hold inside the
// per-trip hash.  Timestamps are unix milliseconds.
type holdEntry struct {
    UserID    uint64 `json:"user_id"`
    Seats     []int  `json:"seats"`
    CreatedAt int64  `json:"created_at"`
    ExpiresAt int64  `json:"expires_at"`
}

// createScript checks every live entry in the trip's hash for a seat
// overlap and, if clear, writes the new entry and refreshes the key
// TTL, all server-side, so concurrent callers serialize on the
// script.  Entries found expired along the way are deleted.  Returns
// {0, conflicting_seats...} on conflict and {1} on success.
var createScript = redis.NewScript(`
local entries = redis.call('HGETALL', KEYS[1])
local requested = {}
for i = 5, #ARGV do
  requested[ARGV[i]] = true
end
local conflicts = {}
for i = 1, #entries, 2 do
  local e = cjson.decode(entries[i + 1])
  if tonumber(e.expires_at) > tonumber(ARGV[3]) then
    for _, s in ipairs(e.seats) do
      if requested[tostring(s)] then
        conflicts[#conflicts + 1] = s
      end
    end
  else
    redis.call('HDEL', KEYS[1], entries[i])
  end
end
if #conflicts > 0 then
  local out = {0}
  for _, s in ipairs(conflicts) do
    out[#out + 1] = s
  end
  return out
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[4])
return {1}
`)

// RedisStore is the Redis-backed hold store used in production.
type RedisStore struct {
    rdb *redis.Client
    now func() time.Time
}

// NewRedisStore returns a RedisStore bound to the given client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
    return &RedisStore{rdb: rdb, now: func() time.Time { return time.Now().UTC() }}
}

func tripKey(tripID uint64) string {
    return fmt.Sprintf("trip_holds:%d", tripID)
}

// Create atomically claims the seats for a new hold.  It returns a
// *booking.HoldConflictError naming the overlapping seats when
// another live hold already has any of them.
func (s *RedisStore) Create(ctx context.Context, tripID, userID uint64, seats []int, ttl time.Duration) (*model.SeatHold, error) {
    now := s.now()
    h := &model.SeatHold{
        ID:        uuid.NewString(),
        TripID:    tripID,
        UserID:    userID,
        Seats:     append([]int(nil), seats...),
        CreatedAt: now,
        ExpiresAt: now.Add(ttl),
    }
    entry, err := json.Marshal(holdEntry{
        UserID:    userID,
        Seats:     h.Seats,
        CreatedAt: now.UnixMilli(),
        ExpiresAt: h.ExpiresAt.UnixMilli(),
    })
    if err != nil {
        return nil, fmt.Errorf("marshal hold: %w", err)
    }
    ttlSecs := int64(ttl / time.Second)
    if ttlSecs < 1 {
        ttlSecs = 1
    }
    args := make([]interface{}, 0, 4+len(seats))
    args = append(args, h.ID, string(entry), now.UnixMilli(), ttlSecs)
    for _, n := range seats {
        args = append(args, strconv.Itoa(n))
    }
    res, err := createScript.Run(ctx, s.rdb, []string{tripKey(tripID)}, args...).Result()
    if err != nil {
        return nil, fmt.Errorf("run hold script: %w", err)
    }
    reply, ok := res.([]interface{})
    if !ok || len(reply) == 0 {
        return nil, fmt.Errorf("unexpected hold script reply: %v", res)
    }
    if code, _ := reply[0].(int64); code == 1 {
        return h, nil
    }
    conflicts := make([]int, 0, len(reply)-1)
    for _, v := range reply[1:] {
        if n, ok := v.(int64); ok {
            conflicts = append(conflicts, int(n))
        }
    }
    sort.Ints(conflicts)
    return nil, &booking.HoldConflictError{Seats: conflicts}
}

// Get returns the hold, or nil when it is absent or expired.  An
// expired entry found here is deleted on the spot.
func (s *RedisStore) Get(ctx context.Context, tripID uint64, holdID string) (*model.SeatHold, error) {
    raw, err := s.rdb.HGet(ctx, tripKey(tripID), holdID).Result()
    if err == redis.Nil {
        return nil, nil
    }
    if err != nil {
        return nil, fmt.Errorf("read hold: %w", err)
    }
    h, err := s.decode(tripID, holdID, raw)
    if err != nil {
        return nil, err
    }
    if h.Expired(s.now()) {
        _ = s.rdb.HDel(ctx, tripKey(tripID), holdID).Err()
        return nil, nil
    }
    return h, nil
}

// ActiveSeats returns the union of seats across live holds for the
// trip.  Best-effort snapshot; correctness for double-allocation
// comes from Create, not from this read.
func (s *RedisStore) ActiveSeats(ctx context.Context, tripID uint64) (map[int]struct{}, error) {
    entries, err := s.rdb.HGetAll(ctx, tripKey(tripID)).Result()
    if err != nil {
        return nil, fmt.Errorf("read holds: %w", err)
    }
    now := s.now()
    seats := make(map[int]struct{})
    var stale []string
    for id, raw := range entries {
        h, err := s.decode(tripID, id, raw)
        if err != nil {
            stale = append(stale, id)
            continue
        }
        if h.Expired(now) {
            stale = append(stale, id)
            continue
        }
        for _, n := range h.Seats {
            seats[n] = struct{}{}
        }
    }
    if len(stale) > 0 {
        _ = s.rdb.HDel(ctx, tripKey(tripID), stale...).Err()
    }
    return seats, nil
}

// Release removes a hold before its natural expiry.
func (s *RedisStore) Release(ctx context.Context, tripID uint64, holdID string) error {
    if err := s.rdb.HDel(ctx, tripKey(tripID), holdID).Err(); err != nil {
        return fmt.Errorf("release hold: %w", err)
    }
    return nil
}

// Sweep scans all trip hold keys and deletes expired entries.
// Storage hygiene only; reads already exclude expired holds.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
    removed := 0
    iter := s.rdb.Scan(ctx, 0, "trip_holds:*", 100).Iterator()
    now := s.now()
    for iter.Next(ctx) {
        key := iter.Val()
        entries, err := s.rdb.HGetAll(ctx, key).Result()
        if err != nil {
            return removed, fmt.Errorf("scan holds: %w", err)
        }
        var stale []string
        for id, raw := range entries {
            var e holdEntry
            if err := json.Unmarshal([]byte(raw), &e); err != nil {
                stale = append(stale, id)
                continue
            }
            if e.ExpiresAt <= now.UnixMilli() {
                stale = append(stale, id)
            }
        }
        if len(stale) > 0 {
            if err := s.rdb.HDel(ctx, key, stale...).Err(); err != nil {
                return removed, fmt.Errorf("sweep holds: %w", err)
            }
            removed += len(stale)
        }
    }
    if err := iter.Err(); err != nil {
        return removed, fmt.Errorf("scan hold keys: %w", err)
    }
    return removed, nil
}

func (s *RedisStore) decode(tripID uint64, holdID, raw string) (*model.SeatHold, error) {
    var e holdEntry
    if err := json.Unmarshal([]byte(raw), &e); err != nil {
        return nil, fmt.Errorf("decode hold %s: %w", holdID, err)
    }
    return &model.SeatHold{
        ID:        holdID,
        TripID:    tripID,
        UserID:    e.UserID,
        Seats:     e.Seats,
        CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
        ExpiresAt: time.UnixMilli(e.ExpiresAt).UTC(),
    }, nil
}
