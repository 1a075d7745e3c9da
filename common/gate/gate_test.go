package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/scheduler"
)

const email = "admin@events.io"

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Name)
}

func (r *recorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == name {
			return true
		}
	}
	return false
}

type fixture struct {
	clock *scheduler.FakeClock
	store *MemoryStore
	gate  *Gate
	rec   *recorder
}

func newFixture(cfg Config) *fixture {
	clock := scheduler.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clock)
	rec := &recorder{}
	g := New(cfg, store, scheduler.NewTimerService(clock), WithObserver(rec))
	return &fixture{clock: clock, store: store, gate: g, rec: rec}
}

func reject(context.Context, string, string) error {
	return fmt.Errorf("backend said no: %w", ErrRejected)
}

func accept(context.Context, string, string) error { return nil }

func (fx *fixture) open(t *testing.T) Snapshot {
	t.Helper()
	snap, err := fx.gate.Open(context.Background(), email)
	require.NoError(t, err)
	return snap
}

func TestOpenStartsCountdowns(t *testing.T) {
	fx := newFixture(OTPConfig())
	snap := fx.open(t)

	assert.Equal(t, StateAwaitingInput, snap.State)
	assert.Equal(t, 3, snap.RemainingAttempts)
	assert.Equal(t, 600, snap.ExpiresInSeconds)
	assert.Equal(t, 60, snap.ResendSeconds)
	assert.True(t, fx.rec.has("opened"))
}

func TestFormatErrorsDoNotReachBackendOrConsumeAttempts(t *testing.T) {
	fx := newFixture(OTPConfig())
	snap := fx.open(t)

	calls := 0
	verify := func(context.Context, string, string) error { calls++; return nil }

	for _, code := range []string{"", "1234", "12a45", "01234", "11123", "55555"} {
		_, err := fx.gate.Submit(context.Background(), snap.FlowID, code, verify)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeOTPFormat), "code %q: %v", code, err)
	}

	status, err := fx.gate.Status(snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, status.Attempts)
	assert.Equal(t, StateAwaitingInput, status.State)
}

func TestThreeRejectionsBlockUntilTimerElapses(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)

	_, err := fx.gate.Submit(ctx, snap.FlowID, "48203", reject)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeOTPInvalid))
	_, err = fx.gate.Submit(ctx, snap.FlowID, "48203", reject)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeOTPInvalid))

	blocked, err := fx.gate.Submit(ctx, snap.FlowID, "48203", reject)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBlocked))
	assert.Equal(t, StateBlocked, blocked.State)
	assert.Equal(t, 900, blocked.BlockedSeconds)
	assert.True(t, fx.rec.has("blocked"))

	rec, _ := fx.store.Load(ctx, KindOTP, email)
	assert.Equal(t, 3, rec.Attempts)
	assert.True(t, rec.Blocked(fx.clock.Now()))

	// blocked: the verifier must not be consulted even with a valid code
	called := false
	_, err = fx.gate.Submit(ctx, snap.FlowID, "48203", func(context.Context, string, string) error {
		called = true
		return nil
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBlocked))
	assert.False(t, called)

	// keep the session alive past the block for this test
	cfg := OTPConfig()
	cfg.SessionTTL = time.Hour
	fx2 := newFixture(cfg)
	snap2 := fx2.open(t)
	for i := 0; i < 3; i++ {
		fx2.gate.Submit(ctx, snap2.FlowID, "48203", reject)
	}
	fx2.clock.Advance(15*time.Minute - time.Second)
	status, _ := fx2.gate.Status(snap2.FlowID)
	assert.Equal(t, StateBlocked, status.State)

	fx2.clock.Advance(time.Second)
	status, _ = fx2.gate.Status(snap2.FlowID)
	assert.Equal(t, StateAwaitingInput, status.State)
	assert.Equal(t, 0, status.Attempts)
	assert.True(t, fx2.rec.has("unblocked"))

	rec, _ = fx2.store.Load(ctx, KindOTP, email)
	assert.Equal(t, Record{}, rec)
}

func TestTransportFailureDoesNotConsumeAttempt(t *testing.T) {
	fx := newFixture(OTPConfig())
	snap := fx.open(t)

	boom := errors.New("connection reset")
	_, err := fx.gate.Submit(context.Background(), snap.FlowID, "48203", func(context.Context, string, string) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	status, _ := fx.gate.Status(snap.FlowID)
	assert.Equal(t, 0, status.Attempts)
	assert.Equal(t, StateAwaitingInput, status.State)
}

func TestVerifiedAdvancesAfterDelayAndTearsDown(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)

	fx.gate.Submit(ctx, snap.FlowID, "48203", reject)

	done, err := fx.gate.Submit(ctx, snap.FlowID, "48203", accept)
	require.NoError(t, err)
	assert.Equal(t, StateVerified, done.State)
	assert.Equal(t, "reset-password", done.Redirect)
	assert.Equal(t, 2, done.RedirectInSeconds)
	assert.Equal(t, 0, done.Attempts)

	rec, _ := fx.store.Load(ctx, KindOTP, email)
	assert.Equal(t, Record{}, rec)

	fx.clock.Advance(2 * time.Second)
	_, err = fx.gate.Status(snap.FlowID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFlowNotFound))
	assert.Equal(t, 0, fx.clock.Pending())
	assert.Equal(t, 0, fx.gate.Len())
}

func TestSessionExpiryRedirectsBackAndClearsState(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)

	for i := 0; i < 2; i++ {
		fx.gate.Submit(ctx, snap.FlowID, "48203", reject)
	}

	fx.clock.Advance(10 * time.Minute)

	status, err := fx.gate.Status(snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, status.State)
	assert.Equal(t, "forgot-password", status.Redirect)
	assert.Equal(t, 0, fx.clock.Pending())
	assert.True(t, fx.rec.has("expired"))

	rec, _ := fx.store.Load(ctx, KindOTP, email)
	assert.Equal(t, Record{}, rec)

	_, err = fx.gate.Submit(ctx, snap.FlowID, "48203", accept)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFlowNotFound))

	n, _ := fx.gate.Sweep(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, fx.gate.Len())
}

func TestBlockOutlivesSessionExpiry(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)

	fx.clock.Advance(9 * time.Minute)
	for i := 0; i < 3; i++ {
		fx.gate.Submit(ctx, snap.FlowID, "48203", reject)
	}

	fx.clock.Advance(time.Minute)
	status, err := fx.gate.Status(snap.FlowID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, status.State)

	rec, _ := fx.store.Load(ctx, KindOTP, email)
	assert.True(t, rec.Blocked(fx.clock.Now()))

	reopened := fx.open(t)
	assert.Equal(t, StateBlocked, reopened.State)
	assert.Equal(t, 3, reopened.Attempts)
	assert.Equal(t, 14*60, reopened.BlockedSeconds)

	called := false
	_, err = fx.gate.Submit(ctx, reopened.FlowID, "48203", func(context.Context, string, string) error {
		called = true
		return nil
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeBlocked))
	assert.False(t, called)

	// the block still ends 15 minutes after the third rejection
	fx.clock.Advance(14 * time.Minute)
	after := fx.open(t)
	assert.Equal(t, StateAwaitingInput, after.State)
	assert.Equal(t, 0, after.Attempts)
}

func TestReplicasShareAttemptCounter(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clock)
	a := New(OTPConfig(), store, scheduler.NewTimerService(clock))
	b := New(OTPConfig(), store, scheduler.NewTimerService(clock))
	ctx := context.Background()

	snapA, err := a.Open(ctx, email)
	require.NoError(t, err)
	snapB, err := b.Open(ctx, email)
	require.NoError(t, err)

	var calls int
	verify := func(context.Context, string, string) error {
		calls++
		return fmt.Errorf("wrong code: %w", ErrRejected)
	}

	for i := 0; i < 4; i++ {
		a.Submit(ctx, snapA.FlowID, "48203", verify)
		b.Submit(ctx, snapB.FlowID, "48203", verify)
	}
	assert.Equal(t, 3, calls)

	statusA, _ := a.Status(snapA.FlowID)
	statusB, _ := b.Status(snapB.FlowID)
	assert.Equal(t, StateBlocked, statusA.State)
	assert.Equal(t, StateBlocked, statusB.State)
	assert.Equal(t, 3, statusB.Attempts)

	rec, _ := store.Load(ctx, KindOTP, email)
	assert.Equal(t, 3, rec.Attempts)
	assert.True(t, rec.Blocked(clock.Now()))
}

func TestResendWait(t *testing.T) {
	fx := newFixture(OTPConfig())
	assert.Equal(t, 0, fx.gate.ResendWait(email))

	snap := fx.open(t)
	fx.clock.Advance(15 * time.Second)
	assert.Equal(t, 45, fx.gate.ResendWait(email))

	for i := 0; i < 3; i++ {
		fx.gate.Submit(context.Background(), snap.FlowID, "48203", reject)
	}
	assert.Equal(t, 0, fx.gate.ResendWait(email))
}

func TestResendCooldown(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)

	sent := 0
	send := func(context.Context, string) error { sent++; return nil }

	_, err := fx.gate.Resend(ctx, snap.FlowID, send)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeResendCooldown))
	assert.Equal(t, 0, sent)

	fx.clock.Advance(60 * time.Second)
	after, err := fx.gate.Resend(ctx, snap.FlowID, send)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 60, after.ResendSeconds)
}

func TestResendAllowedWhileBlocked(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)
	for i := 0; i < 3; i++ {
		fx.gate.Submit(ctx, snap.FlowID, "48203", reject)
	}
	fx.clock.Advance(time.Minute)

	after, err := fx.gate.Resend(ctx, snap.FlowID, func(context.Context, string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, after.State)
}

func TestFailedResendKeepsCooldownOff(t *testing.T) {
	fx := newFixture(OTPConfig())
	snap := fx.open(t)
	fx.clock.Advance(time.Minute)

	_, err := fx.gate.Resend(context.Background(), snap.FlowID, func(context.Context, string) error {
		return errors.New("smtp down")
	})
	assert.Error(t, err)

	status, _ := fx.gate.Status(snap.FlowID)
	assert.Equal(t, 0, status.ResendSeconds)
}

func TestReopenKeepsPersistedAttemptsAndBlock(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()

	first := fx.open(t)
	fx.gate.Submit(ctx, first.FlowID, "48203", reject)
	fx.gate.Submit(ctx, first.FlowID, "48203", reject)

	second := fx.open(t)
	assert.NotEqual(t, first.FlowID, second.FlowID)
	assert.Equal(t, 2, second.Attempts)

	_, err := fx.gate.Status(first.FlowID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFlowNotFound))

	fx.gate.Submit(ctx, second.FlowID, "48203", reject)
	third := fx.open(t)
	assert.Equal(t, StateBlocked, third.State)
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	fx := newFixture(OTPConfig())
	ctx := context.Background()
	snap := fx.open(t)

	var inner error
	_, err := fx.gate.Submit(ctx, snap.FlowID, "48203", func(ctx context.Context, _, _ string) error {
		_, inner = fx.gate.Submit(ctx, snap.FlowID, "48203", accept)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, apperrors.IsCode(inner, apperrors.ErrCodeConflict))
}

func TestCloseCancelsTimers(t *testing.T) {
	fx := newFixture(OTPConfig())
	snap := fx.open(t)
	require.Greater(t, fx.clock.Pending(), 0)

	fx.gate.Close(snap.FlowID)

	assert.Equal(t, 0, fx.clock.Pending())
	assert.True(t, fx.rec.has("torn_down"))
	fx.clock.Advance(time.Hour)
	assert.False(t, fx.rec.has("expired"))
}

func TestIPGateNormalizesAndScopesByIdentity(t *testing.T) {
	fx := newFixture(IPConfig())
	ctx := context.Background()

	a, err := fx.gate.Open(ctx, "a@events.io")
	require.NoError(t, err)
	b, err := fx.gate.Open(ctx, "b@events.io")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		fx.gate.Submit(ctx, a.FlowID, "zzzzz", reject)
	}
	statusA, _ := fx.gate.Status(a.FlowID)
	statusB, _ := fx.gate.Status(b.FlowID)
	assert.Equal(t, StateBlocked, statusA.State)
	assert.Equal(t, StateAwaitingInput, statusB.State)

	var got string
	done, err := fx.gate.Submit(ctx, b.FlowID, " ab12c ", func(_ context.Context, identity, code string) error {
		got = code
		assert.Equal(t, "b@events.io", identity)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "AB12C", got)
	assert.Equal(t, "dashboard", done.Redirect)
}

func TestOpenRequiresIdentity(t *testing.T) {
	fx := newFixture(OTPConfig())
	_, err := fx.gate.Open(context.Background(), "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMissingField))
}
