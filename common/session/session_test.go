package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/scheduler"
)

func init() {
	jwt.SetSecret("session-test-secret")
}

func newManager() (*Manager, *scheduler.FakeClock) {
	clock := scheduler.NewFakeClock(time.Now())
	return NewManager(NewMemoryStore(clock), time.Hour, clock), clock
}

func params() CreateParams {
	return CreateParams{
		User:         User{ID: "7", Name: "Ada", Email: "ada@events.io", Role: "ADMIN"},
		Permissions:  permission.Normalize([]byte(`[{"featureName":"Events","permissions":[{"permissionName":"Create"}]}]`)),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}
}

func TestCreateAndResolve(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	s, cookie, err := m.Create(ctx, params())
	require.NoError(t, err)
	assert.Equal(t, "en", s.Language)

	got, err := m.Resolve(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.True(t, got.Permissions.HasPermission("events", "create"))
}

func TestResolveRejectsGarbage(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.Resolve(ctx, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))

	_, err = m.Resolve(ctx, "forged.token.value")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionExpired))
}

func TestSessionExpires(t *testing.T) {
	m, clock := newManager()
	ctx := context.Background()
	s, _, err := m.Create(ctx, params())
	require.NoError(t, err)

	clock.Advance(time.Hour)

	_, err = m.Get(ctx, s.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionExpired))
}

func TestUpdateTokensAndPreferences(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()
	s, _, _ := m.Create(ctx, params())

	_, err := m.UpdateTokens(ctx, s.ID, "access-2", "")
	require.NoError(t, err)
	_, err = m.UpdatePreferences(ctx, s.ID, Preferences{Language: "vi", LastPath: "/events"})
	require.NoError(t, err)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Equal(t, "vi", got.Language)
	assert.Equal(t, "/events", got.LastPath)
}

func TestDestroyRunsHooks(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()
	s, _, _ := m.Create(ctx, params())

	var destroyed string
	m.OnDestroy(func(_ context.Context, id string) { destroyed = id })

	require.NoError(t, m.Destroy(ctx, s.ID))
	assert.Equal(t, s.ID, destroyed)

	_, err := m.Get(ctx, s.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionExpired))
}

func TestContextHelpers(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	s := &Session{ID: "abc"}
	got, ok := FromContext(WithSession(context.Background(), s))
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db)

	s := &Session{ID: "s1", User: User{ID: "1", Email: "a@b.co"}, ExpiresAt: time.Unix(1900000000, 0).UTC()}
	data, _ := json.Marshal(s)

	mock.ExpectSet("session:s1", string(data), time.Hour).SetVal("OK")
	require.NoError(t, store.Save(ctx, s, time.Hour))

	mock.ExpectGet("session:s1").SetVal(string(data))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", got.User.Email)

	mock.ExpectGet("session:missing").RedisNil()
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectDel("session:s1").SetVal(1)
	require.NoError(t, store.Delete(ctx, "s1"))

	require.NoError(t, mock.ExpectationsWereMet())
}
