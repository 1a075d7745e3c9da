package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/gate"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/recaptcha"
	"github.com/event-admin-services/common/scheduler"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/auth-lambda/repository"
	"github.com/event-admin-services/services/auth-lambda/usecase"
)

func newDispatcher(t *testing.T) middleware.Handler {
	t.Helper()
	jwt.SetSecret("handler-test-secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			w.Write([]byte(`{"accessToken":"a","refreshToken":"r","user":{"id":"u1","name":"Lan","email":"lan@events.io","role":"Admin"},
				"permissions":[{"featureName":"Events","permissions":["View"]}]}`))
		case "/auth/logout":
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	clock := scheduler.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	timers := scheduler.NewTimerService(clock)
	sessions := session.NewManager(session.NewMemoryStore(clock), time.Hour, clock)
	uc := usecase.NewAuthUseCase(usecase.Deps{
		Repo:     repository.NewAuthRepository(backend.NewClient(backend.Config{BaseURL: srv.URL}, sessions)),
		Sessions: sessions,
		OTPGate:  gate.New(gate.OTPConfig(), gate.NewMemoryStore(clock), timers),
		IPGate:   gate.New(gate.IPConfig(), gate.NewMemoryStore(clock), timers),
		Captcha:  recaptcha.NewService(&recaptcha.Config{SkipVerify: true}),
	})
	h := NewAuthHandler(uc, "admin_session", false)

	guards := middleware.Guards{Sessions: sessions, CookieName: "admin_session"}
	return middleware.Dispatcher(guards, h.Routes())
}

func sessionCookie(t *testing.T, resp events.APIGatewayProxyResponse) string {
	t.Helper()
	cookies := resp.MultiValueHeaders["Set-Cookie"]
	require.Len(t, cookies, 1)
	return strings.SplitN(cookies[0], ";", 2)[0]
}

func TestLoginMeLogout(t *testing.T) {
	dispatch := newDispatcher(t)
	ctx := context.Background()

	resp, err := dispatch(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/auth/login",
		Body:       `{"email":"lan@events.io","password":"secret123"}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, "Lan", gjson.Get(resp.Body, "data.session.user.name").String())
	assert.False(t, gjson.Get(resp.Body, "data.session.accessToken").Exists())
	cookie := sessionCookie(t, resp)
	assert.True(t, strings.HasPrefix(cookie, "admin_session="))

	resp, err = dispatch(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/api/auth/me",
		Headers:    map[string]string{"Cookie": cookie},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Events", gjson.Get(resp.Body, "data.permissions.0.feature").String())

	resp, err = dispatch(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/auth/logout",
		Headers:    map[string]string{"Cookie": cookie},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.MultiValueHeaders["Set-Cookie"][0], "Max-Age=0")

	resp, err = dispatch(ctx, events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/api/auth/me",
		Headers:    map[string]string{"Cookie": cookie},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeRequiresSession(t *testing.T) {
	dispatch := newDispatcher(t)
	resp, err := dispatch(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/api/auth/me"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFlowStatusUnknownFlow(t *testing.T) {
	dispatch := newDispatcher(t)
	resp, err := dispatch(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/api/auth/verification/otp/nope",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "E4013", gjson.Get(resp.Body, "code").String())
}

func TestLoginBadBody(t *testing.T) {
	dispatch := newDispatcher(t)
	resp, err := dispatch(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/auth/login",
		Body:       `{not json`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
