// Package redislock keeps seat locks in Redis for deployments that want
// lock traffic off the primary database.  Each lock is its own key with a
// native expiry, so no reaper is needed.  Redis cannot see the bookings
// table: booked seats are refused by the coordinator before Acquire and by
// the unique seat claim when a booking is written.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// Store implements the seat lock store on top of a Redis client.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// Option customizes a Store.
type Option func(*Store)

// WithPrefix changes the key namespace (default "seatlock").
func WithPrefix(p string) Option {
	return func(s *Store) {
		if p != "" {
			s.prefix = p
		}
	}
}

// New returns a Store using rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: "seatlock"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys share a {show} hash tag so that a show's keys live in one slot.
func (s *Store) lockKey(showID uint64, seat model.SeatID) string {
	return fmt.Sprintf("%s:{%d}:seat:%s", s.prefix, showID, seat)
}

func (s *Store) lockPattern(showID uint64) string {
	return fmt.Sprintf("%s:{%d}:seat:*", s.prefix, showID)
}

// Lock values are "holder:expiresUnixMilli:createdUnixMilli".  The expiry
// is stored alongside the native TTL so that every read judges liveness
// against the caller's clock.
func encodeLock(holder uint64, expires, created time.Time) string {
	return strconv.FormatUint(holder, 10) + ":" +
		strconv.FormatInt(expires.UnixMilli(), 10) + ":" +
		strconv.FormatInt(created.UnixMilli(), 10)
}

func decodeLock(v string) (holder uint64, expires, created time.Time, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, time.Time{}, time.Time{}, fmt.Errorf("malformed lock value %q", v)
	}
	holder, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	crt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, time.Time{}, time.Time{}, err
	}
	return holder, time.UnixMilli(exp).UTC(), time.UnixMilli(crt).UTC(), nil
}

// KEYS[1] lock key
// ARGV[1] lock value, ARGV[2] now ms, ARGV[3] ttl ms
var acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur then
    local exp = tonumber(string.match(cur, "^%d+:(%d+):%d+$"))
    if exp and exp > tonumber(ARGV[2]) then
        return -1
    end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// KEYS lock keys of one show
// ARGV[1] holder, ARGV[2] now ms, ARGV[3] pin-until ms
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[2])
local untilMs = tonumber(ARGV[3])
local vals = {}
for i, key in ipairs(KEYS) do
    local cur = redis.call("GET", key)
    if not cur then
        return 0
    end
    local holder, exp, created = string.match(cur, "^(%d+):(%d+):(%d+)$")
    if holder ~= ARGV[1] or tonumber(exp) <= now then
        return 0
    end
    vals[i] = {tonumber(exp), created}
end
for i, key in ipairs(KEYS) do
    local exp = vals[i][1]
    if exp < untilMs then
        exp = untilMs
    end
    redis.call("SET", key, ARGV[1] .. ":" .. string.format("%d", exp) .. ":" .. vals[i][2], "PX", exp - now)
end
return 1
`)

// KEYS[1] lock key
// ARGV[1] holder, ARGV[2] now ms (0 ignores expiry)
var releaseScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
    return 0
end
local first = string.find(cur, ":", 1, true)
if not first or string.sub(cur, 1, first - 1) ~= ARGV[1] then
    return 0
end
local now = tonumber(ARGV[2])
if now > 0 then
    local second = string.find(cur, ":", first + 1, true)
    local exp = tonumber(string.sub(cur, first + 1, (second or 0) - 1))
    if not exp or exp <= now then
        return 0
    end
end
redis.call("DEL", KEYS[1])
return 1
`)

// Acquire grants holder a lock on seat.  The liveness check and the write
// run in one script, so concurrent callers for the same seat are
// serialized by Redis and exactly one of them wins.
func (s *Store) Acquire(ctx context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time, ttl time.Duration) (model.SeatLock, error) {
	lock := model.SeatLock{
		ShowID:    showID,
		SeatID:    seat,
		HolderID:  holder,
		ExpiresAt: now.Add(ttl).UTC(),
		CreatedAt: now.UTC(),
	}
	ttlMs := ttl.Milliseconds()
	if ttlMs < 1 {
		ttlMs = 1
	}
	res, err := acquireScript.Run(ctx, s.rdb,
		[]string{s.lockKey(showID, seat)},
		encodeLock(holder, lock.ExpiresAt, lock.CreatedAt), now.UnixMilli(), ttlMs,
	).Int()
	if err != nil {
		return model.SeatLock{}, transient(err)
	}
	if res < 0 {
		return model.SeatLock{}, model.ErrAlreadyLocked
	}
	return lock, nil
}

// Release deletes holder's live lock on seat or returns
// model.ErrLockNotFound.
func (s *Store) Release(ctx context.Context, showID uint64, seat model.SeatID, holder uint64, now time.Time) error {
	n, err := releaseScript.Run(ctx, s.rdb,
		[]string{s.lockKey(showID, seat)},
		strconv.FormatUint(holder, 10), now.UnixMilli(),
	).Int()
	if err != nil {
		return transient(err)
	}
	if n == 0 {
		return model.ErrLockNotFound
	}
	return nil
}

// ReleaseHeld deletes holder's locks on seats, or on every seat of the
// show when seats is nil.
func (s *Store) ReleaseHeld(ctx context.Context, showID, holder uint64, seats []model.SeatID) (int, error) {
	keys := make([]string, 0, len(seats))
	if seats == nil {
		var err error
		keys, err = s.scanLockKeys(ctx, showID)
		if err != nil {
			return 0, err
		}
	} else {
		for _, seat := range seats {
			keys = append(keys, s.lockKey(showID, seat))
		}
	}
	released := 0
	h := strconv.FormatUint(holder, 10)
	for _, k := range keys {
		n, err := releaseScript.Run(ctx, s.rdb, []string{k}, h, 0).Int()
		if err != nil {
			return released, transient(err)
		}
		released += n
	}
	return released, nil
}

// ActiveByShow returns the live locks of a show ordered by seat.
func (s *Store) ActiveByShow(ctx context.Context, showID uint64, now time.Time) ([]model.SeatLock, error) {
	keys, err := s.scanLockKeys(ctx, showID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, transient(err)
	}
	prefix := fmt.Sprintf("%s:{%d}:seat:", s.prefix, showID)
	var locks []model.SeatLock
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		holder, exp, created, err := decodeLock(str)
		if err != nil || !exp.After(now) {
			continue
		}
		locks = append(locks, model.SeatLock{
			ShowID:    showID,
			SeatID:    model.SeatID(strings.TrimPrefix(keys[i], prefix)),
			HolderID:  holder,
			ExpiresAt: exp,
			CreatedAt: created,
		})
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].SeatID < locks[j].SeatID })
	return locks, nil
}

// PurgeExpired is a no-op: Redis expires lock keys natively.
func (s *Store) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Claim checks and pins holder's locks on seats in one script.  The keys
// share the show's hash slot, so this also works against a cluster.
func (s *Store) Claim(ctx context.Context, showID, holder uint64, seats []model.SeatID, now time.Time, hold time.Duration) error {
	if len(seats) == 0 {
		return model.ErrLockNotHeld
	}
	keys := make([]string, len(seats))
	for i, seat := range seats {
		keys[i] = s.lockKey(showID, seat)
	}
	ok, err := claimScript.Run(ctx, s.rdb, keys,
		strconv.FormatUint(holder, 10), now.UnixMilli(), now.Add(hold).UnixMilli(),
	).Int()
	if err != nil {
		return transient(err)
	}
	if ok != 1 {
		return model.ErrLockNotHeld
	}
	return nil
}

func (s *Store) scanLockKeys(ctx context.Context, showID uint64) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.lockPattern(showID), 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, transient(err)
	}
	return keys, nil
}

// transient marks Redis failures as retryable.  A redis.Nil reply is not a
// failure and is returned unchanged.
func transient(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrTransient, err)
}
