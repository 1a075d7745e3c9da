package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/event-admin-services/common/audit"
	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/config"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	"github.com/event-admin-services/services/user-lambda/repository"
	"github.com/event-admin-services/services/user-lambda/usecase"
)

type harness struct {
	dispatch middleware.Handler
	sessions *session.Manager
	readAll  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	config.SetConfigPath(filepath.Join(t.TempDir(), "system_config.json"))
	h := &harness{}

	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"fullName":"Lan Do","email":"lan@events.io","status":"ACTIVE"}]`))
	})
	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":1,"title":"New booking","read":false}]}`))
	})
	mux.HandleFunc("/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		h.readAll++
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clock := scheduler.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	h.sessions = session.NewManager(session.NewMemoryStore(clock), time.Hour, clock)
	client := backend.NewClient(backend.Config{BaseURL: srv.URL}, h.sessions)
	uc := usecase.NewUserUseCase(repository.NewUserRepository(client), store.New(clock), audit.NewMemoryStore(10), h.sessions)

	guards := middleware.Guards{Sessions: h.sessions, CookieName: "admin_session"}
	h.dispatch = middleware.Dispatcher(guards, NewUserHandler(uc).Routes())
	return h
}

func (h *harness) login(t *testing.T, grants string) string {
	t.Helper()
	_, cookie, err := h.sessions.Create(context.Background(), session.CreateParams{
		User:        session.User{ID: "1", Email: "admin@events.io", Role: "Admin"},
		Permissions: permission.Normalize([]byte(grants)),
		AccessToken: "access",
	})
	require.NoError(t, err)
	return "admin_session=" + cookie
}

func (h *harness) call(t *testing.T, method, path, cookie, body string) events.APIGatewayProxyResponse {
	t.Helper()
	u, err := url.Parse(path)
	require.NoError(t, err)
	query := map[string]string{}
	for k, v := range u.Query() {
		query[k] = v[0]
	}
	resp, err := h.dispatch(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            method,
		Path:                  u.Path,
		QueryStringParameters: query,
		Headers:               map[string]string{"Cookie": cookie},
		Body:                  body,
	})
	require.NoError(t, err)
	return resp
}

func TestUserRoutesArePermissionGated(t *testing.T) {
	h := newHarness(t)
	viewer := h.login(t, `[{"featureName":"Users","permissions":["View"]}]`)

	resp := h.call(t, http.MethodGet, "/api/users?search=lan", viewer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, "Lan Do", gjson.Get(resp.Body, "data.items.0.fullName").String())

	resp = h.call(t, http.MethodDelete, "/api/users/7", viewer, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.call(t, http.MethodGet, "/api/roles", viewer, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.call(t, http.MethodGet, "/api/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeleteSelfRejected(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, `[{"featureName":"Users","permissions":["View","Delete"]}]`)

	resp := h.call(t, http.MethodDelete, "/api/users/1", admin, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, resp.Body)
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	cookie := h.login(t, `[{"featureName":"Notifications","permissions":["View","Update"]}]`)

	resp := h.call(t, http.MethodGet, "/api/notifications", cookie, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, int64(1), gjson.Get(resp.Body, "data.unread").Int())

	resp = h.call(t, http.MethodPut, "/api/notifications/read-all", cookie, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, 1, h.readAll)
}

func TestSettingsPartialUpdate(t *testing.T) {
	h := newHarness(t)
	viewer := h.login(t, `[{"featureName":"Settings","permissions":["View"]}]`)
	editor := h.login(t, `[{"featureName":"Settings","permissions":["View","Update"]}]`)

	resp := h.call(t, http.MethodPut, "/api/settings", viewer, `{"maxAttempts":5}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.call(t, http.MethodPut, "/api/settings", editor, `{"maxAttempts":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, int64(5), gjson.Get(resp.Body, "data.maxAttempts").Int())
	assert.Equal(t, int64(15), gjson.Get(resp.Body, "data.blockMinutes").Int())

	resp = h.call(t, http.MethodPut, "/api/settings", editor, `{"defaultPageSize":500}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.call(t, http.MethodGet, "/api/settings", viewer, "")
	assert.Equal(t, int64(5), gjson.Get(resp.Body, "data.maxAttempts").Int())
}
