package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/metrics"
	"github.com/event-admin-services/common/response"
)

// RequestLogger assigns a request id, recovers panics, and logs and
// counts every request.
func RequestLogger() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, request events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
			requestID := header(request, "X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx = logger.ContextWithRequestID(ctx, requestID)
			start := time.Now()

			defer func() {
				if r := recover(); r != nil {
					logger.WithContext(ctx).Error("panic in handler", "panic", fmt.Sprint(r), "path", request.Path)
					resp, err = response.Error(apperrors.Internal("handler panic"))
				}
				if err != nil {
					resp, err = response.Error(err)
				}
				if resp.Headers == nil {
					resp.Headers = map[string]string{}
				}
				resp.Headers["X-Request-Id"] = requestID

				elapsed := time.Since(start)
				logger.WithContext(ctx).LogRequest(logger.RequestLog{
					Method:    request.HTTPMethod,
					Path:      request.Path,
					Status:    resp.StatusCode,
					Duration:  elapsed,
					ClientIP:  ClientIP(request),
					UserAgent: header(request, "User-Agent"),
					RequestID: requestID,
				})
				route := request.Resource
				if route == "" {
					route = request.Path
				}
				metrics.TrackRequest(request.HTTPMethod, route, resp.StatusCode, elapsed)
			}()

			return next(ctx, request)
		}
	}
}
