package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/event-admin-services/common/scheduler"
)

const keyPrefix = "session:"

// RedisStore keeps sessions as JSON with the remaining lifetime as TTL
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Delete(ctx, s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, keyPrefix+s.ID, string(data), ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}

// MemoryStore is used in development and tests
type MemoryStore struct {
	mu       sync.Mutex
	clock    scheduler.Clock
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewMemoryStore(clock scheduler.Clock) *MemoryStore {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &MemoryStore{clock: clock, sessions: make(map[string]memoryEntry)}
}

// Save stores a copy so callers cannot mutate the stored session
func (m *MemoryStore) Save(_ context.Context, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl <= 0 {
		delete(m.sessions, s.ID)
		return nil
	}
	m.sessions[s.ID] = memoryEntry{data: data, expires: m.clock.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok && !m.clock.Now().Before(e.expires) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep drops expired sessions; returns their ids so slices can be cleared too
func (m *MemoryStore) Sweep(_ context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	var ids []string
	for id, e := range m.sessions {
		if !now.Before(e.expires) {
			delete(m.sessions, id)
			ids = append(ids, id)
		}
	}
	return ids
}
