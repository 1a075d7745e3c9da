package middleware

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"

	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/response"
)

const maxBodyBytes = 32 << 20

// AdaptRequest converts an http.Request to an APIGatewayProxyRequest.
// Route variables from gorilla/mux become path parameters; non-UTF-8 bodies
// (multipart uploads) are base64-encoded as API Gateway does.
func AdaptRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}

	headers := make(map[string]string)
	multi := make(map[string][]string)
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = strings.Join(values, ", ")
			multi[key] = values
		}
	}
	// cookies are joined with "; " rather than ", "
	if cookies := r.Header.Values("Cookie"); len(cookies) > 0 {
		headers["Cookie"] = strings.Join(cookies, "; ")
	}

	queryParams := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			queryParams[key] = values[0]
		}
	}

	resource := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			resource = tpl
		}
	}

	req := events.APIGatewayProxyRequest{
		Resource:                        resource,
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         headers,
		MultiValueHeaders:               multi,
		QueryStringParameters:           queryParams,
		MultiValueQueryStringParameters: r.URL.Query(),
		PathParameters:                  mux.Vars(r),
		RequestContext: events.APIGatewayProxyRequestContext{
			Identity: events.APIGatewayRequestIdentity{SourceIP: remoteHost(r.RemoteAddr)},
		},
	}
	if utf8.Valid(body) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}
	return req, nil
}

// WriteResponse writes an APIGatewayProxyResponse to w
func WriteResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for key, value := range resp.Headers {
		// CORS middleware owns these when it ran
		if strings.HasPrefix(key, "Access-Control-") && w.Header().Get(key) != "" {
			continue
		}
		w.Header().Set(key, value)
	}
	for key, values := range resp.MultiValueHeaders {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			logger.WithError(err).Error("failed to decode binary response")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = decoded
	}

	w.WriteHeader(status)
	w.Write(body)
}

// Adapter serves a lambda handler over net/http
func Adapter(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := AdaptRequest(r)
		if err != nil {
			resp, _ := response.Status(http.StatusBadRequest, "Invalid request body")
			WriteResponse(w, resp)
			return
		}

		resp, err := h(r.Context(), req)
		if err != nil {
			resp, _ = response.Error(err)
		}
		WriteResponse(w, resp)
	}
}

// CORS answers preflights and sets the CORS headers. allowOrigin "*" echoes
// the caller's origin since the session cookie requires credentials.
func CORS(allowOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := allowOrigin
			if origin == "" || origin == "*" {
				origin = r.Header.Get("Origin")
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", response.CORSHeaders["Access-Control-Allow-Methods"])
			w.Header().Set("Access-Control-Allow-Headers", response.CORSHeaders["Access-Control-Allow-Headers"])
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(addr string) string {
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}
