// Package gate implements the OTP and IP verification state machines used
// by the password-reset and new-device login flows.
//
// A flow is opened for one identity (normalized email). It accepts codes
// until it is verified, blocked after too many rejections, or expired. All
// deferred work (block countdown, resend cooldown, session expiry and the
// delayed advance after success) runs on one scheduler.TimerService group per
// flow, so closing a flow cancels every pending callback.
package gate

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/hash"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/scheduler"
)

// State of a verification flow
type State string

const (
	StateAwaitingInput State = "AWAITING_INPUT"
	StateSubmitting    State = "SUBMITTING"
	StateVerified      State = "VERIFIED"
	StateBlocked       State = "BLOCKED"
	StateExpired       State = "EXPIRED"
)

const (
	timerBlock   = "block"
	timerResend  = "resend"
	timerExpire  = "expire"
	timerAdvance = "advance"
)

// ErrRejected marks a verifier error as "the backend said the code is wrong".
// Only rejections consume an attempt.
var ErrRejected = errors.New("verification code rejected")

// Verifier submits a code for identity to the backend
type Verifier func(ctx context.Context, identity, code string) error

// Sender asks the backend to send a new code to identity
type Sender func(ctx context.Context, identity string) error

// Snapshot is the client-visible view of a flow
type Snapshot struct {
	FlowID            string `json:"flowId"`
	Kind              Kind   `json:"kind"`
	State             State  `json:"state"`
	Attempts          int    `json:"attempts"`
	MaxAttempts       int    `json:"maxAttempts"`
	RemainingAttempts int    `json:"remainingAttempts"`
	BlockedSeconds    int    `json:"blockedSeconds,omitempty"`
	ResendSeconds     int    `json:"resendSeconds,omitempty"`
	ExpiresInSeconds  int    `json:"expiresInSeconds,omitempty"`
	Redirect          string `json:"redirect,omitempty"`
	RedirectInSeconds int    `json:"redirectInSeconds,omitempty"`
}

type flow struct {
	mu           sync.Mutex
	id           string
	identity     string
	state        State
	attempts     int
	blockedUntil time.Time
	expiresAt    time.Time
	redirect     string
	redirectAt   time.Time
	sending      bool
	closed       bool
	timers       *scheduler.Group
}

// Gate runs the flows of one Config. Flows and their timers live in this
// process; only the attempt counter and block go through the Store.
type Gate struct {
	cfg      Config
	store    Store
	timers   *scheduler.TimerService
	clock    scheduler.Clock
	observer Observer
	log      *logger.Logger

	mu         sync.Mutex
	flows      map[string]*flow
	byIdentity map[string]string
}

// Option configures a Gate
type Option func(*Gate)

// WithObserver receives every lifecycle event
func WithObserver(o Observer) Option {
	return func(g *Gate) { g.observer = o }
}

// New creates a gate
func New(cfg Config, store Store, timers *scheduler.TimerService, opts ...Option) *Gate {
	g := &Gate{
		cfg:        cfg,
		store:      store,
		timers:     timers,
		clock:      timers.Clock(),
		observer:   nopObserver{},
		log:        logger.Default().With("gate", string(cfg.Kind)),
		flows:      make(map[string]*flow),
		byIdentity: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the gate configuration
func (g *Gate) Config() Config { return g.cfg }

// Open starts a flow for identity, replacing any flow the identity already has.
// Persisted block state carries over so that reopening cannot reset a block.
func (g *Gate) Open(ctx context.Context, identity string) (Snapshot, error) {
	if identity == "" {
		return Snapshot{}, apperrors.MissingField("email")
	}

	g.mu.Lock()
	old := g.flows[g.byIdentity[identity]]
	g.mu.Unlock()
	if old != nil {
		g.teardown(old, "replaced")
	}

	rec, err := g.store.Load(ctx, g.cfg.Kind, identity)
	if err != nil {
		return Snapshot{}, err
	}

	now := g.clock.Now()
	f := &flow{
		id:        uuid.NewString(),
		identity:  identity,
		state:     StateAwaitingInput,
		attempts:  rec.Attempts,
		expiresAt: now.Add(g.cfg.SessionTTL),
	}
	f.timers = g.timers.Group(g.owner(f.id))

	f.mu.Lock()
	switch {
	case rec.Blocked(now):
		g.block(f, rec.BlockedUntil)
	case !rec.BlockedUntil.IsZero() || rec.Attempts >= g.cfg.MaxAttempts:
		// block elapsed while nobody was watching
		f.attempts = 0
		if err := g.store.Delete(ctx, g.cfg.Kind, identity); err != nil {
			g.log.WithError(err).Warn("failed to clear elapsed block")
		}
	}
	f.timers.Schedule(timerExpire, g.cfg.SessionTTL, func() { g.expire(f) })
	f.timers.Schedule(timerResend, g.cfg.ResendCooldown, func() {})
	snap := g.snapshot(f)
	f.mu.Unlock()

	g.mu.Lock()
	g.flows[f.id] = f
	g.byIdentity[identity] = f.id
	g.mu.Unlock()

	g.emit("opened", f, nil)
	return snap, nil
}

// Submit validates code locally and, if it passes, hands it to verify.
// Format errors never reach verify and never consume an attempt.
func (g *Gate) Submit(ctx context.Context, flowID, code string, verify Verifier) (Snapshot, error) {
	f, ok := g.get(flowID)
	if !ok {
		return Snapshot{}, apperrors.FlowNotFound()
	}

	f.mu.Lock()
	if err := g.checkSubmittable(f); err != nil {
		f.mu.Unlock()
		return Snapshot{}, err
	}
	code = g.cfg.normalize(code)
	if msg := g.cfg.validate(code); msg != "" {
		snap := g.snapshot(f)
		f.mu.Unlock()
		g.emit("format_rejected", f, nil)
		return snap, apperrors.CodeFormat(msg)
	}
	f.state = StateSubmitting
	identity := f.identity
	f.mu.Unlock()

	// other instances share the counter; never verify for a blocked identity
	rec, err := g.store.Load(ctx, g.cfg.Kind, identity)
	if err != nil {
		g.log.WithError(err).Warn("failed to reload attempt counter")
	}
	if now := g.clock.Now(); rec.Blocked(now) {
		f.mu.Lock()
		if f.closed || f.state != StateSubmitting {
			f.mu.Unlock()
			return Snapshot{}, apperrors.FlowNotFound()
		}
		f.attempts = rec.Attempts
		g.block(f, rec.BlockedUntil)
		snap := g.snapshot(f)
		f.mu.Unlock()
		g.emit("blocked", f, nil)
		return snap, apperrors.Blocked(seconds(rec.BlockedUntil.Sub(now)))
	}

	verr := verify(ctx, identity, code)

	f.mu.Lock()
	if f.closed || f.state != StateSubmitting {
		// expired or closed while the backend was answering
		f.mu.Unlock()
		return Snapshot{}, apperrors.FlowNotFound()
	}

	switch {
	case verr == nil:
		g.verified(ctx, f)
		snap := g.snapshot(f)
		f.mu.Unlock()
		g.emit("verified", f, nil)
		return snap, nil

	case errors.Is(verr, ErrRejected):
		n, err := g.store.Incr(ctx, g.cfg.Kind, f.identity, g.cfg.BlockDuration)
		if err != nil {
			g.log.WithError(err).Error("failed to persist attempt counter")
			n = max(f.attempts, rec.Attempts) + 1
		}
		f.attempts = n
		event := "rejected"
		var result error
		if n >= g.cfg.MaxAttempts {
			until := g.clock.Now().Add(g.cfg.BlockDuration)
			g.block(f, until)
			if err := g.store.Block(ctx, g.cfg.Kind, f.identity, until, g.cfg.BlockDuration); err != nil {
				g.log.WithError(err).Error("failed to persist block")
			}
			event = "blocked"
			result = apperrors.Blocked(seconds(g.cfg.BlockDuration))
		} else {
			f.state = StateAwaitingInput
			result = apperrors.OTPInvalid(g.cfg.MaxAttempts - n)
		}
		snap := g.snapshot(f)
		f.mu.Unlock()
		g.emit(event, f, nil)
		return snap, result

	default:
		// transport or server failure: the user may retry without penalty
		f.state = StateAwaitingInput
		snap := g.snapshot(f)
		f.mu.Unlock()
		g.emit("submit_failed", f, map[string]interface{}{"error": verr.Error()})
		return snap, verr
	}
}

// Resend asks for a new code unless the cooldown is running. Resending is
// allowed while blocked; the block countdown is independent.
func (g *Gate) Resend(ctx context.Context, flowID string, send Sender) (Snapshot, error) {
	f, ok := g.get(flowID)
	if !ok {
		return Snapshot{}, apperrors.FlowNotFound()
	}

	f.mu.Lock()
	switch {
	case f.closed || f.state == StateExpired:
		f.mu.Unlock()
		return Snapshot{}, apperrors.FlowNotFound()
	case f.state == StateVerified:
		f.mu.Unlock()
		return Snapshot{}, apperrors.InvalidState("Verification already completed")
	case f.sending:
		f.mu.Unlock()
		return Snapshot{}, apperrors.Conflict("A new code is already being sent")
	}
	if left := f.timers.Remaining(timerResend); left > 0 {
		f.mu.Unlock()
		return Snapshot{}, apperrors.ResendCooldown(seconds(left))
	}
	f.sending = true
	identity := f.identity
	f.mu.Unlock()

	err := send(ctx, identity)

	f.mu.Lock()
	f.sending = false
	if err != nil {
		snap := g.snapshot(f)
		f.mu.Unlock()
		return snap, err
	}
	if !f.closed {
		f.timers.Schedule(timerResend, g.cfg.ResendCooldown, func() {})
	}
	snap := g.snapshot(f)
	f.mu.Unlock()

	g.emit("resent", f, nil)
	return snap, nil
}

// Status returns the current snapshot of a flow
func (g *Gate) Status(flowID string) (Snapshot, error) {
	f, ok := g.get(flowID)
	if !ok {
		return Snapshot{}, apperrors.FlowNotFound()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return g.snapshot(f), nil
}

// Identity returns the identity a flow was opened for
func (g *Gate) Identity(flowID string) (string, bool) {
	f, ok := g.get(flowID)
	if !ok {
		return "", false
	}
	return f.identity, true
}

// ResendWait reports the seconds left on the resend countdown of the flow
// currently open for identity. It is 0 when no flow is open, or when the
// open flow is blocked (reopening a blocked identity sends nothing).
func (g *Gate) ResendWait(identity string) int {
	g.mu.Lock()
	f := g.flows[g.byIdentity[identity]]
	g.mu.Unlock()
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.state != StateAwaitingInput && f.state != StateSubmitting {
		return 0
	}
	return seconds(f.timers.Remaining(timerResend))
}

// Close tears a flow down and cancels its timers (client navigated away)
func (g *Gate) Close(flowID string) {
	if f, ok := g.get(flowID); ok {
		g.teardown(f, "closed")
	}
}

// Shutdown closes every flow
func (g *Gate) Shutdown() {
	g.mu.Lock()
	flows := make([]*flow, 0, len(g.flows))
	for _, f := range g.flows {
		flows = append(flows, f)
	}
	g.mu.Unlock()
	for _, f := range flows {
		g.teardown(f, "shutdown")
	}
}

// Sweep drops expired flows that nobody closed. Used as a janitor job.
func (g *Gate) Sweep(_ context.Context) (int, error) {
	g.mu.Lock()
	var stale []*flow
	for _, f := range g.flows {
		f.mu.Lock()
		if f.state == StateExpired {
			stale = append(stale, f)
		}
		f.mu.Unlock()
	}
	g.mu.Unlock()

	for _, f := range stale {
		g.teardown(f, "swept")
	}
	return len(stale), nil
}

// Len counts open flows
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flows)
}

// ============================================================
// Transitions (callers hold f.mu unless noted)
// ============================================================

func (g *Gate) checkSubmittable(f *flow) error {
	switch {
	case f.closed || f.state == StateExpired:
		return apperrors.FlowNotFound()
	case f.state == StateVerified:
		return apperrors.InvalidState("Verification already completed")
	case f.state == StateSubmitting:
		return apperrors.Conflict("A verification request is already in progress")
	case f.state == StateBlocked:
		return apperrors.Blocked(seconds(f.blockedUntil.Sub(g.clock.Now())))
	}
	return nil
}

func (g *Gate) block(f *flow, until time.Time) {
	f.state = StateBlocked
	f.blockedUntil = until
	f.timers.Schedule(timerBlock, until.Sub(g.clock.Now()), func() { g.unblock(f) })
}

func (g *Gate) verified(ctx context.Context, f *flow) {
	f.state = StateVerified
	f.attempts = 0
	f.blockedUntil = time.Time{}
	f.redirect = g.cfg.NextStep
	f.redirectAt = g.clock.Now().Add(g.cfg.AdvanceDelay)
	f.timers.CancelAll()
	f.timers.Schedule(timerAdvance, g.cfg.AdvanceDelay, func() { g.teardown(f, "advanced") })
	if err := g.store.Delete(ctx, g.cfg.Kind, f.identity); err != nil {
		g.log.WithError(err).Warn("failed to clear attempt counter")
	}
}

// unblock runs on the block timer
func (g *Gate) unblock(f *flow) {
	f.mu.Lock()
	if f.closed || f.state != StateBlocked {
		f.mu.Unlock()
		return
	}
	f.state = StateAwaitingInput
	f.attempts = 0
	f.blockedUntil = time.Time{}
	if err := g.store.Delete(context.Background(), g.cfg.Kind, f.identity); err != nil {
		g.log.WithError(err).Warn("failed to clear block")
	}
	f.mu.Unlock()
	g.emit("unblocked", f, nil)
}

// expire runs on the session timer: back to the previous step whatever the state.
func (g *Gate) expire(f *flow) {
	f.mu.Lock()
	if f.closed || f.state == StateVerified {
		f.mu.Unlock()
		return
	}
	now := g.clock.Now()
	f.state = StateExpired
	f.redirect = g.cfg.PreviousStep
	f.redirectAt = now
	f.blockedUntil = time.Time{}
	f.timers.CancelAll()
	// an active block outlives the flow and runs out on its own TTL
	ctx := context.Background()
	rec, err := g.store.Load(ctx, g.cfg.Kind, f.identity)
	if err != nil {
		g.log.WithError(err).Warn("failed to load attempt counter on expiry")
	}
	if err == nil && !rec.Blocked(now) {
		if err := g.store.Delete(ctx, g.cfg.Kind, f.identity); err != nil {
			g.log.WithError(err).Warn("failed to clear attempt counter on expiry")
		}
	}
	f.mu.Unlock()
	g.emit("expired", f, nil)
}

// teardown removes the flow and cancels its timers. f.mu must not be held.
func (g *Gate) teardown(f *flow, reason string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	g.timers.Release(g.owner(f.id))

	g.mu.Lock()
	delete(g.flows, f.id)
	if g.byIdentity[f.identity] == f.id {
		delete(g.byIdentity, f.identity)
	}
	g.mu.Unlock()

	g.emit("torn_down", f, map[string]interface{}{"reason": reason})
}

func (g *Gate) get(flowID string) (*flow, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.flows[flowID]
	return f, ok
}

func (g *Gate) owner(flowID string) string {
	return "gate:" + string(g.cfg.Kind) + ":" + flowID
}

func (g *Gate) snapshot(f *flow) Snapshot {
	now := g.clock.Now()
	s := Snapshot{
		FlowID:            f.id,
		Kind:              g.cfg.Kind,
		State:             f.state,
		Attempts:          f.attempts,
		MaxAttempts:       g.cfg.MaxAttempts,
		RemainingAttempts: g.cfg.MaxAttempts - f.attempts,
		Redirect:          f.redirect,
	}
	if s.RemainingAttempts < 0 {
		s.RemainingAttempts = 0
	}
	if f.state == StateBlocked {
		s.BlockedSeconds = seconds(f.blockedUntil.Sub(now))
	}
	if f.state != StateExpired && f.state != StateVerified {
		s.ResendSeconds = seconds(f.timers.Remaining(timerResend))
		s.ExpiresInSeconds = seconds(f.expiresAt.Sub(now))
	}
	if f.redirect != "" {
		s.RedirectInSeconds = seconds(f.redirectAt.Sub(now))
	}
	return s
}

// emit must be called without f.mu held
func (g *Gate) emit(name string, f *flow, meta map[string]interface{}) {
	f.mu.Lock()
	evt := Event{
		Kind:     g.cfg.Kind,
		Name:     name,
		FlowID:   f.id,
		Identity: hash.Short(f.identity),
		Attempts: f.attempts,
		State:    f.state,
		Metadata: meta,
	}
	f.mu.Unlock()
	g.observer.OnEvent(evt)
}

// seconds rounds up so a countdown never shows 0 while still running
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
