// Package audit persists security events (verification gate transitions,
// logins, logouts) and serves them to the security log view.
package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/event-admin-services/common/gate"
	"github.com/event-admin-services/common/logger"
)

// Entry is one security event
type Entry struct {
	ID        int64                  `json:"id"`
	Kind      string                 `json:"kind"`
	Event     string                 `json:"event"`
	Identity  string                 `json:"identity"`
	Attempts  int                    `json:"attempts"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Filter narrows a listing
type Filter struct {
	Kind   string
	Event  string
	Limit  int
	Offset int
}

// Store persists entries
type Store interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, int, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// FromGateEvent converts a gate transition
func FromGateEvent(e gate.Event, at time.Time) Entry {
	meta := make(map[string]interface{}, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta["flowId"] = e.FlowID
	meta["state"] = string(e.State)
	return Entry{
		Kind:      string(e.Kind),
		Event:     e.Name,
		Identity:  e.Identity,
		Attempts:  e.Attempts,
		Metadata:  meta,
		CreatedAt: at,
	}
}

// Recorder writes entries from a buffered queue so gate callbacks never
// wait on the database. When the queue is full the entry is logged and dropped.
type Recorder struct {
	store Store
	queue chan Entry
	now   func() time.Time
	log   *logger.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRecorder creates a recorder with the given queue size
func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store: store,
		queue: make(chan Entry, buffer),
		now:   time.Now,
		log:   logger.Default().With("component", "audit"),
	}
}

// Start launches the writer goroutine
func (r *Recorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for e := range r.queue {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.store.Record(ctx, e); err != nil {
				r.log.WithError(err).Warn("failed to record security event", "kind", e.Kind, "event", e.Event)
			}
			cancel()
		}
	}()
}

// Stop drains the queue and waits for the writer
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.queue) })
	r.wg.Wait()
}

// Enqueue schedules an entry for writing
func (r *Recorder) Enqueue(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("audit queue full, dropping event", "kind", e.Kind, "event", e.Event)
	}
}

// OnEvent implements gate.Observer
func (r *Recorder) OnEvent(e gate.Event) {
	r.Enqueue(FromGateEvent(e, r.now()))
}

// MemoryStore keeps the most recent entries in memory (audit database disabled)
type MemoryStore struct {
	mu      sync.Mutex
	max     int
	nextID  int64
	entries []Entry
}

// NewMemoryStore keeps at most max entries
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max}
}

func (m *MemoryStore) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.max; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

// List returns newest first
func (m *MemoryStore) List(_ context.Context, f Filter) ([]Entry, int, error) {
	m.mu.Lock()
	matched := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.Event != "" && e.Event != f.Event {
			continue
		}
		matched = append(matched, e)
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var n int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}
