package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	apperrors "github.com/event-admin-services/common/errors"
)

// CORS Headers for API responses
var CORSHeaders = map[string]string{
	"Access-Control-Allow-Origin":      "*",
	"Access-Control-Allow-Methods":     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	"Access-Control-Allow-Headers":     "Content-Type,Authorization,X-Request-Id",
	"Access-Control-Allow-Credentials": "true",
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// SuccessResponse creates a success response
func SuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// ErrorResponse creates an error response
func ErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
	}
}

// MessageResponse creates a message-only response
func MessageResponse(message string) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
	}
}

// FromAppError renders an AppError as an envelope
func FromAppError(err *apperrors.AppError) APIResponse {
	return APIResponse{
		Success: false,
		Error:   err.Message,
		Code:    string(err.Code),
		Fields:  err.Fields,
	}
}

// ToJSON converts response to JSON string
func (r APIResponse) ToJSON() (string, error) {
	bytes, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// ============================================================
// Lambda responses
// ============================================================

func headers(extra map[string]string) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range CORSHeaders {
		h[k] = v
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

// JSON writes an arbitrary payload with the given status
func JSON(status int, payload interface{}) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers(nil),
			Body:       `{"success":false,"error":"failed to encode response"}`,
		}, nil
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers(nil),
		Body:       string(body),
	}, nil
}

// Success wraps data in the success envelope
func Success(status int, data interface{}) (events.APIGatewayProxyResponse, error) {
	return JSON(status, SuccessResponse(data))
}

// Message answers 200 with a message-only envelope
func Message(message string) (events.APIGatewayProxyResponse, error) {
	return JSON(http.StatusOK, MessageResponse(message))
}

// Status answers with a plain error message, mirroring the status code
func Status(status int, message string) (events.APIGatewayProxyResponse, error) {
	return JSON(status, ErrorResponse(message))
}

// Error maps any error onto its envelope and HTTP status
func Error(err error) (events.APIGatewayProxyResponse, error) {
	appErr := apperrors.ToAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if appErr.Code == apperrors.ErrCodeInternal {
		// internals never leak
		return JSON(status, APIResponse{Success: false, Error: "Internal server error", Code: string(appErr.Code)})
	}
	return JSON(status, FromAppError(appErr))
}

// WithCookie attaches a Set-Cookie header
func WithCookie(resp events.APIGatewayProxyResponse, cookie string) events.APIGatewayProxyResponse {
	if resp.MultiValueHeaders == nil {
		resp.MultiValueHeaders = map[string][]string{}
	}
	resp.MultiValueHeaders["Set-Cookie"] = append(resp.MultiValueHeaders["Set-Cookie"], cookie)
	return resp
}

// SessionCookie formats the session cookie; maxAge <= 0 clears it.
func SessionCookie(name, value string, maxAge time.Duration, secure bool) string {
	if maxAge <= 0 {
		return fmt.Sprintf("%s=; Path=/; Max-Age=0; HttpOnly; SameSite=Lax", name)
	}
	c := fmt.Sprintf("%s=%s; Path=/; Max-Age=%d; HttpOnly; SameSite=Lax", name, value, int(maxAge.Seconds()))
	if secure {
		c += "; Secure"
	}
	return c
}

// Binary answers with base64-encoded content (PDF, PNG)
func Binary(contentType, filename string, base64Body string) events.APIGatewayProxyResponse {
	h := headers(map[string]string{"Content-Type": contentType})
	if filename != "" {
		h["Content-Disposition"] = fmt.Sprintf("attachment; filename=%q", filename)
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Headers:         h,
		Body:            base64Body,
		IsBase64Encoded: true,
	}
}
