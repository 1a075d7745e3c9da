package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
)

// SessionResolver loads the session named by a cookie value (session.Manager)
type SessionResolver interface {
	Resolve(ctx context.Context, cookie string) (*session.Session, error)
}

// SessionCookie returns the named cookie from the request, falling back to a
// bearer token so non-browser clients can pass the same value.
func SessionCookie(request events.APIGatewayProxyRequest, name string) string {
	if raw := header(request, "Cookie"); raw != "" {
		cookies, err := http.ParseCookie(raw)
		if err == nil {
			for _, c := range cookies {
				if c.Name == name {
					return c.Value
				}
			}
		}
	}
	if auth := header(request, "Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Authenticate resolves the session cookie and stores the session in the
// context. A missing cookie is 401; an expired session is 401 with a
// redirect to the login page and the stale cookie cleared.
func Authenticate(sessions SessionResolver, cookieName string, secure bool) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			sess, err := sessions.Resolve(ctx, SessionCookie(request, cookieName))
			if err != nil {
				resp, _ := response.Error(err)
				if apperrors.IsCode(err, apperrors.ErrCodeSessionExpired) {
					resp = response.WithCookie(resp, response.SessionCookie(cookieName, "", 0, secure))
				}
				return resp, nil
			}

			ctx = session.WithSession(ctx, sess)
			ctx = logger.ContextWithSession(ctx, sess.ID, sess.User.ID)
			return next(ctx, request)
		}
	}
}

// RequirePermission answers 403 unless the session's role grants
// permission on feature.
func RequirePermission(feature, perm string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			sess, ok := session.FromContext(ctx)
			if !ok {
				return response.Error(apperrors.Unauthorized("Not signed in"))
			}
			if !sess.Permissions.HasPermission(feature, perm) {
				logger.WithContext(ctx).Warn("permission denied", "feature", feature, "permission", perm, "role", sess.User.Role)
				return response.Error(apperrors.AccessDenied().WithField("feature", feature).WithField("permission", perm))
			}
			return next(ctx, request)
		}
	}
}
