package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/event-admin-services/common/response"
)

// Route declares one endpoint of a service
type Route struct {
	Method  string
	Path    string // gorilla/mux template, e.g. /api/events/{id}
	Handler Handler

	// Public routes skip session authentication
	Public bool
	// RateLimited routes pass through the per-IP limiter
	RateLimited bool
	// Feature and Permission, when set, are checked with RequirePermission
	Feature    string
	Permission string
}

// Guards holds what Wrap needs to protect routes
type Guards struct {
	Sessions     SessionResolver
	CookieName   string
	CookieSecure bool
	Limiter      *RateLimiter
}

// Wrap applies logging, rate limiting, authentication and the permission check
func (g Guards) Wrap(r Route) Handler {
	mws := []Middleware{RequestLogger()}
	if r.RateLimited && g.Limiter != nil {
		mws = append(mws, g.Limiter.Middleware())
	}
	if !r.Public {
		mws = append(mws, Authenticate(g.Sessions, g.CookieName, g.CookieSecure))
		if r.Feature != "" {
			mws = append(mws, RequirePermission(r.Feature, r.Permission))
		}
	}
	return Chain(r.Handler, mws...)
}

// Dispatcher routes a lambda invocation to the matching route. API Gateway
// fills Resource with the route template; direct invocations fall back to
// matching the raw path against the templates.
func Dispatcher(g Guards, routes []Route) Handler {
	wrapped := make([]Handler, len(routes))
	for i, r := range routes {
		wrapped[i] = g.Wrap(r)
	}

	return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if request.HTTPMethod == http.MethodOptions {
			return response.JSON(http.StatusOK, nil)
		}
		for i, r := range routes {
			if r.Method != request.HTTPMethod {
				continue
			}
			if request.Resource == r.Path {
				return wrapped[i](ctx, request)
			}
			if params, ok := matchPath(r.Path, request.Path); ok {
				if request.PathParameters == nil {
					request.PathParameters = params
				}
				request.Resource = r.Path
				return wrapped[i](ctx, request)
			}
		}
		return response.Status(http.StatusNotFound, "Not Found")
	}
}

// matchPath matches /a/{id}/b against /a/42/b
func matchPath(template, path string) (map[string]string, bool) {
	tp := strings.Split(strings.Trim(template, "/"), "/")
	pp := strings.Split(strings.Trim(path, "/"), "/")
	if len(tp) != len(pp) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range tp {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if pp[i] == "" {
				return nil, false
			}
			name := strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}")
			if j := strings.Index(name, ":"); j >= 0 {
				name = name[:j]
			}
			params[name] = pp[i]
			continue
		}
		if seg != pp[i] {
			return nil, false
		}
	}
	return params, true
}
