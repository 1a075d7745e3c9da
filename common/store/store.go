// Package store keeps the per-session dashboard state: one slice per domain,
// each holding the last successful response and the last error.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/scheduler"
)

// SliceName identifies a partition of dashboard state
type SliceName string

const (
	Events        SliceName = "events"
	Categories    SliceName = "categories"
	Bookings      SliceName = "bookings"
	Customers     SliceName = "customers"
	Transactions  SliceName = "transactions"
	Users         SliceName = "users"
	Roles         SliceName = "roles"
	Notifications SliceName = "notifications"
	BoostPlans    SliceName = "boostPlans"
	Analytics     SliceName = "analytics"
)

// AllSlices lists every slice in display order
var AllSlices = []SliceName{Events, Categories, Bookings, Customers, Transactions, Users, Roles, Notifications, BoostPlans, Analytics}

// SliceError is the recorded failure of the last dispatch
type SliceError struct {
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	At      time.Time `json:"at"`
}

// Slice is the client-visible value of one partition
type Slice struct {
	Data      json.RawMessage `json:"data"`
	Error     *SliceError     `json:"error,omitempty"`
	Loading   bool            `json:"loading"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}

type slice struct {
	Slice
	started uint64
	applied uint64
	pending int
}

type sessionState struct {
	mu      sync.Mutex
	slices  map[SliceName]*slice
	touched time.Time
}

// Store holds the slices of every session
type Store struct {
	clock scheduler.Clock

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New creates an empty store
func New(clock scheduler.Clock) *Store {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &Store{clock: clock, sessions: make(map[string]*sessionState)}
}

// Fetch performs the backend call behind a dispatch
type Fetch func(ctx context.Context) (interface{}, error)

// Dispatch runs fetch for one slice. Success replaces the slice data; failure
// records the error and keeps the previous data. When dispatches overlap, a
// response older than the one already applied is dropped.
func (s *Store) Dispatch(ctx context.Context, sessionID string, name SliceName, fetch Fetch) (interface{}, error) {
	st := s.state(sessionID)

	st.mu.Lock()
	sl := st.slice(name)
	sl.started++
	seq := sl.started
	sl.pending++
	sl.Loading = true
	st.touched = s.clock.Now()
	st.mu.Unlock()

	value, err := fetch(ctx)

	var data json.RawMessage
	if err == nil {
		raw, merr := json.Marshal(value)
		if merr != nil {
			err = apperrors.Wrap(merr, apperrors.ErrCodeInternal, "Failed to encode response")
		} else {
			data = raw
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	sl.pending--
	sl.Loading = sl.pending > 0
	now := s.clock.Now()
	st.touched = now
	if seq < sl.applied {
		return value, err
	}
	sl.applied = seq
	if err != nil {
		appErr := apperrors.ToAppError(err)
		sl.Error = &SliceError{Message: appErr.Message, Code: string(appErr.Code), At: now}
		return nil, err
	}
	sl.Data = data
	sl.Error = nil
	sl.UpdatedAt = now
	return value, nil
}

// Get returns one slice of a session
func (s *Store) Get(sessionID string, name SliceName) Slice {
	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.slice(name).Slice
}

// Snapshot returns every slice of a session
func (s *Store) Snapshot(sessionID string) map[SliceName]Slice {
	st := s.state(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[SliceName]Slice, len(AllSlices))
	for _, name := range AllSlices {
		out[name] = st.slice(name).Slice
	}
	return out
}

// Clear drops all slices of a session (logout)
func (s *Store) Clear(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// SweepIdle drops sessions untouched for longer than ttl
func (s *Store) SweepIdle(ttl time.Duration) int {
	cutoff := s.clock.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, st := range s.sessions {
		st.mu.Lock()
		idle := st.touched.Before(cutoff)
		st.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len counts sessions with state
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) state(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{slices: make(map[SliceName]*slice), touched: s.clock.Now()}
		s.sessions[sessionID] = st
	}
	return st
}

func (st *sessionState) slice(name SliceName) *slice {
	sl, ok := st.slices[name]
	if !ok {
		sl = &slice{Slice: Slice{Data: json.RawMessage("null")}}
		st.slices[name] = sl
	}
	return sl
}
