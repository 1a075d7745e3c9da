package scheduler

import (
	"sync"
	"time"
)

// TimerService owns every deferred callback in the process. Timers are
// grouped per owner (one verification flow, one session) so that a whole
// group can be cancelled on teardown.
type TimerService struct {
	clock  Clock
	mu     sync.Mutex
	groups map[string]*Group
}

// NewTimerService creates a service on the given clock (nil means RealClock)
func NewTimerService(clock Clock) *TimerService {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimerService{clock: clock, groups: make(map[string]*Group)}
}

// Clock returns the clock timers are scheduled on
func (s *TimerService) Clock() Clock { return s.clock }

// Group returns the timer group of owner, creating it on first use
func (s *TimerService) Group(owner string) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[owner]
	if !ok {
		g = &Group{owner: owner, clock: s.clock, timers: make(map[string]*entry)}
		s.groups[owner] = g
	}
	return g
}

// Release cancels all timers of owner and forgets the group
func (s *TimerService) Release(owner string) {
	s.mu.Lock()
	g, ok := s.groups[owner]
	delete(s.groups, owner)
	s.mu.Unlock()
	if ok {
		g.CancelAll()
	}
}

// Active counts pending timers across all groups
func (s *TimerService) Active() int {
	s.mu.Lock()
	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()

	n := 0
	for _, g := range groups {
		n += g.Len()
	}
	return n
}

// Group is a set of named timers. Scheduling a name that is already pending
// replaces it; a replaced or cancelled callback never runs.
type Group struct {
	owner  string
	clock  Clock
	mu     sync.Mutex
	seq    uint64
	timers map[string]*entry
}

type entry struct {
	gen   uint64
	timer Timer
	at    time.Time
}

// Schedule runs fn after d under name
func (g *Group) Schedule(name string, d time.Duration, fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.timers[name]; ok {
		old.timer.Stop()
	}
	g.seq++
	gen := g.seq
	at := g.clock.Now().Add(d)
	t := g.clock.AfterFunc(d, func() {
		g.mu.Lock()
		cur, ok := g.timers[name]
		if !ok || cur.gen != gen {
			g.mu.Unlock()
			return
		}
		delete(g.timers, name)
		g.mu.Unlock()
		fn()
	})
	g.timers[name] = &entry{gen: gen, timer: t, at: at}
}

// Cancel stops the named timer; reports whether one was pending
func (g *Group) Cancel(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.timers[name]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(g.timers, name)
	return true
}

// CancelAll stops every timer in the group
func (g *Group) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, e := range g.timers {
		e.timer.Stop()
		delete(g.timers, name)
	}
}

// Pending reports whether name is scheduled
func (g *Group) Pending(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.timers[name]
	return ok
}

// Remaining returns the time left on name, 0 if not pending
func (g *Group) Remaining(name string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.timers[name]
	if !ok {
		return 0
	}
	left := e.at.Sub(g.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Len counts pending timers
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}
