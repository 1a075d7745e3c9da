package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestFakeClockFiresInOrder(t *testing.T) {
	clock := NewFakeClock(epoch)
	var order []string

	clock.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	clock.AfterFunc(time.Second, func() { order = append(order, "a") })
	clock.AfterFunc(time.Minute, func() { order = append(order, "late") })

	clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
	assert.Equal(t, 1, clock.Pending())
}

func TestFakeClockCallbackCanReschedule(t *testing.T) {
	clock := NewFakeClock(epoch)
	fired := 0
	var tick func()
	tick = func() {
		fired++
		if fired < 3 {
			clock.AfterFunc(time.Second, tick)
		}
	}
	clock.AfterFunc(time.Second, tick)

	clock.Advance(10 * time.Second)
	assert.Equal(t, 3, fired)
}

func TestGroupScheduleReplacesByName(t *testing.T) {
	clock := NewFakeClock(epoch)
	svc := NewTimerService(clock)
	g := svc.Group("flow-1")

	var got []string
	g.Schedule("expire", time.Minute, func() { got = append(got, "first") })
	g.Schedule("expire", 2*time.Minute, func() { got = append(got, "second") })

	clock.Advance(time.Minute)
	assert.Empty(t, got)
	assert.Equal(t, time.Minute, g.Remaining("expire"))

	clock.Advance(time.Minute)
	assert.Equal(t, []string{"second"}, got)
	assert.False(t, g.Pending("expire"))
}

func TestGroupCancel(t *testing.T) {
	clock := NewFakeClock(epoch)
	g := NewTimerService(clock).Group("flow-2")

	fired := false
	g.Schedule("block", time.Second, func() { fired = true })
	assert.True(t, g.Cancel("block"))
	assert.False(t, g.Cancel("block"))

	clock.Advance(time.Hour)
	assert.False(t, fired)
}

func TestReleaseCancelsEverything(t *testing.T) {
	clock := NewFakeClock(epoch)
	svc := NewTimerService(clock)
	g := svc.Group("flow-3")

	fired := 0
	g.Schedule("a", time.Second, func() { fired++ })
	g.Schedule("b", time.Second, func() { fired++ })
	svc.Group("other").Schedule("c", time.Second, func() { fired++ })
	assert.Equal(t, 3, svc.Active())

	svc.Release("flow-3")
	assert.Equal(t, 1, svc.Active())

	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, clock.Pending())
}

func TestGroupReturnsSameInstance(t *testing.T) {
	svc := NewTimerService(nil)
	assert.Same(t, svc.Group("x"), svc.Group("x"))
	assert.IsType(t, RealClock{}, svc.Clock())
}

func TestJanitorRunOnce(t *testing.T) {
	calls := 0
	j := NewJanitor(time.Hour,
		Job{Name: "sessions", Run: func(ctx context.Context) (int, error) { calls++; return 2, nil }},
		Job{Name: "broken", Run: func(ctx context.Context) (int, error) { calls++; return 0, errors.New("redis down") }},
		Job{Name: "slices", Run: func(ctx context.Context) (int, error) { calls++; return 0, nil }},
	)

	removed := j.RunOnce(context.Background())

	assert.Equal(t, 3, calls)
	assert.Equal(t, map[string]int{"sessions": 2, "slices": 0}, removed)

	j.Stop()
	j.Stop()
}
