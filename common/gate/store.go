package gate

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/event-admin-services/common/hash"
	"github.com/event-admin-services/common/scheduler"
)

// Record is the persisted attempt/block state of one identity.
type Record struct {
	Attempts     int       `json:"attempts"`
	BlockedUntil time.Time `json:"blockedUntil,omitempty"`
}

// Blocked reports whether the record blocks submissions at now
func (r Record) Blocked(now time.Time) bool {
	return !r.BlockedUntil.IsZero() && now.Before(r.BlockedUntil)
}

// Store persists attempt counters per (kind, identity). A missing entry
// loads as the zero Record. Every instance of a gate shares one Store, so
// Incr must be atomic.
type Store interface {
	Load(ctx context.Context, kind Kind, identity string) (Record, error)
	// Incr counts one rejection and returns the new total. The counter
	// lives for ttl from the first rejection.
	Incr(ctx context.Context, kind Kind, identity string, ttl time.Duration) (int, error)
	// Block rejects submissions until until; the entry lives for ttl.
	Block(ctx context.Context, kind Kind, identity string, until time.Time, ttl time.Duration) error
	Delete(ctx context.Context, kind Kind, identity string) error
}

// Key builds the store key; the email itself is never stored.
func Key(kind Kind, identity string) string {
	return fmt.Sprintf("gate:%s:%s", kind, hash.Identity(identity))
}

func attemptsKey(kind Kind, identity string) string { return Key(kind, identity) + ":attempts" }
func blockKey(kind Kind, identity string) string    { return Key(kind, identity) + ":blocked" }

// ============================================================
// Redis store
// ============================================================

// RedisStore keeps the attempt counter and the block deadline (unix
// milliseconds) under two keys so the counter can use INCR.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, kind Kind, identity string) (Record, error) {
	var rec Record
	vals, err := s.client.MGet(ctx, attemptsKey(kind, identity), blockKey(kind, identity)).Result()
	if err != nil {
		return rec, fmt.Errorf("load gate record: %w", err)
	}
	if len(vals) != 2 {
		return rec, fmt.Errorf("load gate record: unexpected reply of %d values", len(vals))
	}
	if v, ok := vals[0].(string); ok {
		if rec.Attempts, err = strconv.Atoi(v); err != nil {
			return Record{}, fmt.Errorf("decode gate attempts: %w", err)
		}
	}
	if v, ok := vals[1].(string); ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("decode gate block: %w", err)
		}
		rec.BlockedUntil = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}

func (s *RedisStore) Incr(ctx context.Context, kind Kind, identity string, ttl time.Duration) (int, error) {
	key := attemptsKey(kind, identity)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count gate attempt: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return int(count), fmt.Errorf("expire gate attempts: %w", err)
		}
	}
	return int(count), nil
}

func (s *RedisStore) Block(ctx context.Context, kind Kind, identity string, until time.Time, ttl time.Duration) error {
	if err := s.client.Set(ctx, blockKey(kind, identity), strconv.FormatInt(until.UnixMilli(), 10), ttl).Err(); err != nil {
		return fmt.Errorf("save gate block: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, kind Kind, identity string) error {
	if err := s.client.Del(ctx, attemptsKey(kind, identity), blockKey(kind, identity)).Err(); err != nil {
		return fmt.Errorf("delete gate record: %w", err)
	}
	return nil
}

// ============================================================
// Memory store
// ============================================================

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStore is the single-instance store used in development and tests
type MemoryStore struct {
	mu      sync.Mutex
	clock   scheduler.Clock
	entries map[string]memoryEntry
}

func NewMemoryStore(clock scheduler.Clock) *MemoryStore {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &MemoryStore{clock: clock, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Load(_ context.Context, kind Kind, identity string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(kind, identity)
	e, ok := s.entries[key]
	if !ok {
		return Record{}, nil
	}
	if !e.expires.IsZero() && !s.clock.Now().Before(e.expires) {
		delete(s.entries, key)
		return Record{}, nil
	}
	return e.rec, nil
}

func (s *MemoryStore) Incr(_ context.Context, kind Kind, identity string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(kind, identity)
	now := s.clock.Now()
	e, ok := s.entries[key]
	if !ok || (!e.expires.IsZero() && !now.Before(e.expires)) {
		e = memoryEntry{}
		if ttl > 0 {
			e.expires = now.Add(ttl)
		}
	}
	e.rec.Attempts++
	s.entries[key] = e
	return e.rec.Attempts, nil
}

func (s *MemoryStore) Block(_ context.Context, kind Kind, identity string, until time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(kind, identity)
	now := s.clock.Now()
	e, ok := s.entries[key]
	if !ok || (!e.expires.IsZero() && !now.Before(e.expires)) {
		e = memoryEntry{}
	}
	e.rec.BlockedUntil = until
	if exp := now.Add(ttl); ttl > 0 && exp.After(e.expires) {
		e.expires = exp
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(kind, identity))
	return nil
}

// Sweep drops expired entries
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	n := 0
	for k, e := range s.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
