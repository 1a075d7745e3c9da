package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		template string
		path     string
		ok       bool
		params   map[string]string
	}{
		{"/api/events", "/api/events", true, map[string]string{}},
		{"/api/events", "/api/events/", true, map[string]string{}},
		{"/api/events/{id}", "/api/events/42", true, map[string]string{"id": "42"}},
		{"/api/events/{id:[0-9]+}", "/api/events/42", true, map[string]string{"id": "42"}},
		{"/api/notifications/{id}/read", "/api/notifications/9/read", true, map[string]string{"id": "9"}},
		{"/api/events/{id}", "/api/events", false, nil},
		{"/api/events/{id}", "/api/categories/1", false, nil},
		{"/api/events/{id}", "/api/events/1/receipt", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.template+" "+tt.path, func(t *testing.T) {
			params, ok := matchPath(tt.template, tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.params, params)
			}
		})
	}
}

func named(name string) Handler {
	return func(_ context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return response.Success(http.StatusOK, map[string]string{"route": name, "id": request.PathParameters["id"]})
	}
}

func TestDispatcher(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, cookie string) (*session.Session, error) {
		if cookie != "good" {
			return nil, apperrors.Unauthorized("Not signed in")
		}
		return &session.Session{
			ID:          "s1",
			User:        session.User{ID: "u1"},
			Permissions: permission.Normalize([]byte(`[{"featureName":"Events","permissions":["View"]}]`)),
		}, nil
	})
	guards := Guards{Sessions: resolver, CookieName: "admin_session"}
	dispatch := Dispatcher(guards, []Route{
		{Method: http.MethodGet, Path: "/api/events/calendar", Handler: named("calendar"), Feature: permission.FeatureEvents, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/events/{id}", Handler: named("detail"), Feature: permission.FeatureEvents, Permission: permission.View},
		{Method: http.MethodDelete, Path: "/api/events/{id}", Handler: named("delete"), Feature: permission.FeatureEvents, Permission: permission.Delete},
		{Method: http.MethodPost, Path: "/api/public", Handler: named("public"), Public: true},
	})

	call := func(method, path, resource, cookie string) (int, response.APIResponse) {
		resp, err := dispatch(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: method,
			Path:       path,
			Resource:   resource,
			Headers:    map[string]string{"Cookie": cookie},
		})
		require.NoError(t, err)
		return resp.StatusCode, decode(t, resp)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		resource   string
		cookie     string
		wantStatus int
		wantRoute  string
	}{
		{"static before template", http.MethodGet, "/api/events/calendar", "", "admin_session=good", http.StatusOK, "calendar"},
		{"template fills params", http.MethodGet, "/api/events/7", "", "admin_session=good", http.StatusOK, "detail"},
		{"resource from gateway", http.MethodGet, "/prod/api/events/7", "/api/events/{id}", "admin_session=good", http.StatusOK, "detail"},
		{"permission denied", http.MethodDelete, "/api/events/7", "", "admin_session=good", http.StatusForbidden, ""},
		{"no session", http.MethodGet, "/api/events/7", "", "", http.StatusUnauthorized, ""},
		{"public route", http.MethodPost, "/api/public", "", "", http.StatusOK, "public"},
		{"unknown path", http.MethodGet, "/api/nothing", "", "admin_session=good", http.StatusNotFound, ""},
		{"wrong method", http.MethodPut, "/api/events/7", "", "admin_session=good", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(tt.method, tt.path, tt.resource, tt.cookie)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantRoute != "" {
				data, ok := body.Data.(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, tt.wantRoute, data["route"])
			}
		})
	}

	resp, err := dispatch(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/api/events"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
