package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/scheduler"
)

func value(v interface{}) Fetch {
	return func(context.Context) (interface{}, error) { return v, nil }
}

func failing(err error) Fetch {
	return func(context.Context) (interface{}, error) { return nil, err }
}

func TestDispatchReplacesNotMerges(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	_, err := s.Dispatch(ctx, "sess", Events, value(map[string]int{"a": 1, "b": 2}))
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, "sess", Events, value(map[string]int{"c": 3}))
	require.NoError(t, err)

	assert.JSONEq(t, `{"c":3}`, string(s.Get("sess", Events).Data))
}

func TestFailureKeepsPreviousDataAndRecordsError(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	s.Dispatch(ctx, "sess", Bookings, value([]string{"b1"}))
	_, err := s.Dispatch(ctx, "sess", Bookings, failing(apperrors.NotFound("Booking")))
	assert.Error(t, err)

	sl := s.Get("sess", Bookings)
	assert.JSONEq(t, `["b1"]`, string(sl.Data))
	require.NotNil(t, sl.Error)
	assert.Equal(t, "Booking not found", sl.Error.Message)
	assert.Equal(t, "E3001", sl.Error.Code)
	assert.False(t, sl.Loading)

	s.Dispatch(ctx, "sess", Bookings, value([]string{}))
	assert.Nil(t, s.Get("sess", Bookings).Error)
}

func TestSlicesAreIndependent(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	s.Dispatch(ctx, "sess", Users, value([]int{1}))
	s.Dispatch(ctx, "sess", Roles, failing(errors.New("boom")))

	snap := s.Snapshot("sess")
	assert.Len(t, snap, len(AllSlices))
	assert.JSONEq(t, `[1]`, string(snap[Users].Data))
	assert.Nil(t, snap[Users].Error)
	assert.NotNil(t, snap[Roles].Error)
	assert.Equal(t, "null", string(snap[Events].Data))
}

func TestStaleResponseIsDropped(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Dispatch(ctx, "sess", Events, func(context.Context) (interface{}, error) {
			<-release
			return "old", nil
		})
		close(done)
	}()

	// wait until the slow dispatch is in flight
	require.Eventually(t, func() bool { return s.Get("sess", Events).Loading }, time.Second, time.Millisecond)

	s.Dispatch(ctx, "sess", Events, value("new"))
	close(release)
	<-done

	assert.JSONEq(t, `"new"`, string(s.Get("sess", Events).Data))
	assert.False(t, s.Get("sess", Events).Loading)
}

func TestClearAndSweep(t *testing.T) {
	clock := scheduler.NewFakeClock(time.Now())
	s := New(clock)
	ctx := context.Background()

	s.Dispatch(ctx, "a", Events, value(1))
	s.Dispatch(ctx, "b", Events, value(2))
	s.Clear(ctx, "a")
	assert.Equal(t, 1, s.Len())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, s.SweepIdle(time.Hour))
	assert.Equal(t, 0, s.Len())
}
