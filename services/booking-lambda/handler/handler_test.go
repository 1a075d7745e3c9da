package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
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
	"github.com/event-admin-services/services/booking-lambda/repository"
	"github.com/event-admin-services/services/booking-lambda/usecase"
)

func newDispatcher(t *testing.T) (middleware.Handler, *session.Manager) {
	t.Helper()
	jwt.SetSecret("booking-handler-secret")

	mux := http.NewServeMux()
	mux.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"t1","amount":"12.00","status":"PAID","createdAt":"2026-04-02T10:00:00Z"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clock := scheduler.NewFakeClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	sessions := session.NewManager(session.NewMemoryStore(clock), time.Hour, clock)
	client := backend.NewClient(backend.Config{BaseURL: srv.URL}, sessions)
	uc := usecase.NewBookingUseCase(repository.NewBookingRepository(client), store.New(clock), clock, "usd")

	guards := middleware.Guards{Sessions: sessions, CookieName: "admin_session"}
	return middleware.Dispatcher(guards, NewBookingHandler(uc).Routes()), sessions
}

func signIn(t *testing.T, sessions *session.Manager, grants string) string {
	t.Helper()
	_, cookie, err := sessions.Create(context.Background(), session.CreateParams{
		User:        session.User{ID: "u1", Role: "Accountant"},
		Permissions: permission.Normalize([]byte(grants)),
		AccessToken: "access",
	})
	require.NoError(t, err)
	return "admin_session=" + cookie
}

func get(t *testing.T, dispatch middleware.Handler, path, cookie string, query map[string]string) events.APIGatewayProxyResponse {
	t.Helper()
	resp, err := dispatch(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  path,
		QueryStringParameters: query,
		Headers:               map[string]string{"Cookie": cookie},
	})
	require.NoError(t, err)
	return resp
}

func TestTransactionReportNeedsExport(t *testing.T) {
	dispatch, sessions := newDispatcher(t)
	viewer := signIn(t, sessions, `[{"featureName":"Transactions","permissions":["View"]}]`)
	exporter := signIn(t, sessions, `[{"featureName":"Transactions","permissions":["View","Export"]}]`)

	resp := get(t, dispatch, "/api/transactions", viewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, "12", gjson.Get(resp.Body, "data.items.0.amount").String())

	resp = get(t, dispatch, "/api/transactions/report", viewer, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = get(t, dispatch, "/api/transactions/report", exporter, map[string]string{"from": "2026-04-01", "to": "2026-04-30"})
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.True(t, resp.IsBase64Encoded)
	assert.Equal(t, "application/pdf", resp.Headers["Content-Type"])
	assert.Contains(t, resp.Headers["Content-Disposition"], "transactions-20260504.pdf")
	raw, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))
}

func TestTransactionQueryValidation(t *testing.T) {
	dispatch, sessions := newDispatcher(t)
	viewer := signIn(t, sessions, `[{"featureName":"Transactions","permissions":["View"]}]`)

	tests := []struct {
		name  string
		query map[string]string
		code  int
	}{
		{"bad from", map[string]string{"from": "04/01/2026"}, http.StatusBadRequest},
		{"reversed range", map[string]string{"from": "2026-05-01", "to": "2026-04-01"}, http.StatusBadRequest},
		{"same day", map[string]string{"from": "2026-04-02", "to": "2026-04-02"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, dispatch, "/api/transactions", viewer, tt.query)
			assert.Equal(t, tt.code, resp.StatusCode, resp.Body)
		})
	}
}
