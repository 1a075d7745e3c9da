// Package middleware wraps lambda-shaped handlers with the cross-cutting
// concerns of the gateway: request ids and logging, session authentication,
// permission checks and per-client rate limiting. Adapter bridges the same
// handlers onto net/http for the local server.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	apperrors "github.com/event-admin-services/common/errors"
)

// Handler is the lambda handler shape every service exposes
type Handler func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Middleware decorates a Handler
type Middleware func(Handler) Handler

// Chain applies mws so that the first one is the outermost
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ClientIP extracts the caller's address from proxy headers
func ClientIP(request events.APIGatewayProxyRequest) string {
	if forwarded := header(request, "X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := header(request, "X-Real-IP"); ip != "" {
		return ip
	}
	return request.RequestContext.Identity.SourceIP
}

// header looks a header up case-insensitively
func header(request events.APIGatewayProxyRequest, name string) string {
	if v, ok := request.Headers[name]; ok {
		return v
	}
	canonical := http.CanonicalHeaderKey(name)
	if v, ok := request.Headers[canonical]; ok {
		return v
	}
	for k, v := range request.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Header is the exported form of header for handlers
func Header(request events.APIGatewayProxyRequest, name string) string {
	return header(request, name)
}

// BindJSON decodes the request body into v
func BindJSON(request events.APIGatewayProxyRequest, v interface{}) error {
	if strings.TrimSpace(request.Body) == "" {
		return apperrors.ValidationError("Request body is required")
	}
	if err := json.Unmarshal([]byte(request.Body), v); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

// PathParam returns a required path parameter
func PathParam(request events.APIGatewayProxyRequest, name string) (string, error) {
	v := strings.TrimSpace(request.PathParameters[name])
	if v == "" {
		return "", apperrors.MissingField(name)
	}
	return v, nil
}
