package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	"github.com/event-admin-services/services/event-lambda/repository"
	"github.com/event-admin-services/services/event-lambda/usecase"
)

type harness struct {
	dispatch middleware.Handler
	sessions *session.Manager
	deletes  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	jwt.SetSecret("event-handler-secret")
	h := &harness{}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Go Meetup","status":"OPEN","startTime":"2026-05-10T11:00:00Z"}]`))
	})
	mux.HandleFunc("/events/1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			h.deletes++
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`{"id":1,"name":"Go Meetup"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clock := scheduler.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	h.sessions = session.NewManager(session.NewMemoryStore(clock), time.Hour, clock)
	client := backend.NewClient(backend.Config{BaseURL: srv.URL}, h.sessions)
	uc := usecase.NewEventUseCase(repository.NewEventRepository(client), store.New(clock), nil, clock)

	guards := middleware.Guards{Sessions: h.sessions, CookieName: "admin_session"}
	h.dispatch = middleware.Dispatcher(guards, NewEventHandler(uc).Routes())
	return h
}

func (h *harness) login(t *testing.T, grants string) string {
	t.Helper()
	_, cookie, err := h.sessions.Create(context.Background(), session.CreateParams{
		User:        session.User{ID: "u1", Email: "staff@events.io", Role: "Staff"},
		Permissions: permission.Normalize([]byte(grants)),
		AccessToken: "access",
	})
	require.NoError(t, err)
	return "admin_session=" + cookie
}

func (h *harness) call(t *testing.T, method, path, cookie string) events.APIGatewayProxyResponse {
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
	})
	require.NoError(t, err)
	return resp
}

func TestEventRoutesRespectPermissions(t *testing.T) {
	h := newHarness(t)
	viewer := h.login(t, `[{"featureName":"Events","permissions":["View"]}]`)
	editor := h.login(t, `[{"featureName":"Events","permissions":["View","Delete"]}]`)

	resp := h.call(t, http.MethodGet, "/api/events?page=1", viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, int64(1), gjson.Get(resp.Body, "data.pagination.totalItems").Int())

	resp = h.call(t, http.MethodGet, "/api/events/1", viewer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Go Meetup", gjson.Get(resp.Body, "data.name").String())

	resp = h.call(t, http.MethodDelete, "/api/events/1", viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, h.deletes)

	resp = h.call(t, http.MethodDelete, "/api/events/1", editor)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.deletes)

	resp = h.call(t, http.MethodGet, "/api/categories", viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCalendarRouteIsNotShadowedByID(t *testing.T) {
	h := newHarness(t)
	viewer := h.login(t, `[{"featureName":"Events","permissions":["View"]}]`)

	resp := h.call(t, http.MethodGet, "/api/events/calendar", viewer)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.True(t, gjson.Get(resp.Body, "data.days").IsArray())
}

func TestCreateEventValidationBlocksBackend(t *testing.T) {
	h := newHarness(t)
	creator := h.login(t, `[{"featureName":"Events","permissions":["Create"]}]`)

	resp, err := h.dispatch(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/events",
		Headers:    map[string]string{"Cookie": creator, "Content-Type": "application/json"},
		Body:       `{"name":"","price":"-3"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, gjson.Get(resp.Body, "fields.errors.name").Exists())
	assert.True(t, gjson.Get(resp.Body, "fields.errors.price").Exists())
}

func TestUnknownTimeZone(t *testing.T) {
	h := newHarness(t)
	viewer := h.login(t, `[{"featureName":"Events","permissions":["View"]}]`)
	resp := h.call(t, http.MethodGet, "/api/events/calendar?tz=Mars/Olympus", viewer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
