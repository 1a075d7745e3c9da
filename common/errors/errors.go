package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Authentication errors (1xxx)
	ErrCodeUnauthorized       ErrorCode = "E1001"
	ErrCodeInvalidCredentials ErrorCode = "E1002"
	ErrCodeTokenExpired       ErrorCode = "E1003"
	ErrCodeInvalidToken       ErrorCode = "E1004"
	ErrCodeAccessDenied       ErrorCode = "E1005"
	ErrCodeUserBlocked        ErrorCode = "E1006"
	ErrCodeSessionExpired     ErrorCode = "E1007"

	// Validation errors (2xxx)
	ErrCodeValidation      ErrorCode = "E2001"
	ErrCodeInvalidInput    ErrorCode = "E2002"
	ErrCodeMissingField    ErrorCode = "E2003"
	ErrCodeInvalidFormat   ErrorCode = "E2004"
	ErrCodeInvalidEmail    ErrorCode = "E2005"
	ErrCodeInvalidPassword ErrorCode = "E2007"

	// Resource errors (3xxx)
	ErrCodeNotFound      ErrorCode = "E3001"
	ErrCodeAlreadyExists ErrorCode = "E3002"
	ErrCodeConflict      ErrorCode = "E3003"

	// Business logic errors (4xxx)
	ErrCodeBusinessRule    ErrorCode = "E4001"
	ErrCodeInvalidState    ErrorCode = "E4002"
	ErrCodePaymentFailed   ErrorCode = "E4006"
	ErrCodeOTPExpired      ErrorCode = "E4007"
	ErrCodeOTPInvalid      ErrorCode = "E4008"
	ErrCodeOTPFormat       ErrorCode = "E4010"
	ErrCodeBlocked         ErrorCode = "E4011"
	ErrCodeResendCooldown  ErrorCode = "E4012"
	ErrCodeFlowNotFound    ErrorCode = "E4013"
	ErrCodeTooManyRequests ErrorCode = "E4029"

	// External service errors (5xxx)
	ErrCodeExternalService ErrorCode = "E5001"
	ErrCodePaymentProvider ErrorCode = "E5002"
	ErrCodeGeocoding       ErrorCode = "E5003"
	ErrCodeRecaptchaError  ErrorCode = "E5004"

	// Internal errors (9xxx)
	ErrCodeInternal ErrorCode = "E9001"
	ErrCodeDatabase ErrorCode = "E9002"
	ErrCodeTimeout  ErrorCode = "E9003"
)

// AppError represents an application error with context
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Stack      string                 `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so errors.Is(err, errors.SessionExpired()) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds additional details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithField adds a field to the error
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithStatus overrides the HTTP status derived from the code
func (e *AppError) WithStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// ============================================================
// Constructors
// ============================================================

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
		Stack:      captureStack(2),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
		Cause:      err,
		Stack:      captureStack(2),
	}
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidCredentials() *AppError {
	return New(ErrCodeInvalidCredentials, "Invalid email or password")
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func AccessDenied() *AppError {
	return New(ErrCodeAccessDenied, "You do not have permission to perform this action")
}

// SessionExpired is the only fatal class: the client must go back to the login screen.
func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Your session has expired, please sign in again").
		WithField("redirect", "/login")
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).WithField("field", field)
}

func MissingField(field string) *AppError {
	return New(ErrCodeMissingField, fmt.Sprintf("%s is required", field)).WithField("field", field)
}

func InvalidEmail(message string) *AppError {
	return New(ErrCodeInvalidEmail, message).WithField("field", "email")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func BusinessError(message string) *AppError {
	return New(ErrCodeBusinessRule, message)
}

func InvalidState(message string) *AppError {
	return New(ErrCodeInvalidState, message)
}

func PaymentFailed(reason string) *AppError {
	return New(ErrCodePaymentFailed, fmt.Sprintf("Payment failed: %s", reason))
}

func OTPInvalid(remaining int) *AppError {
	return New(ErrCodeOTPInvalid, "The verification code is incorrect").WithField("remainingAttempts", remaining)
}

func CodeFormat(message string) *AppError {
	return New(ErrCodeOTPFormat, message).WithField("field", "code")
}

func Blocked(remainingSeconds int) *AppError {
	return New(ErrCodeBlocked, "Too many failed attempts, verification is temporarily blocked").
		WithField("retryAfter", remainingSeconds)
}

func ResendCooldown(remainingSeconds int) *AppError {
	return New(ErrCodeResendCooldown, "Please wait before requesting a new code").
		WithField("retryAfter", remainingSeconds)
}

func FlowNotFound() *AppError {
	return New(ErrCodeFlowNotFound, "Verification session not found or expired")
}

func TooManyRequests() *AppError {
	return New(ErrCodeTooManyRequests, "Too many requests, please slow down")
}

func ExternalServiceError(service, message string) *AppError {
	return New(ErrCodeExternalService, message).WithField("service", service)
}

func PaymentProviderError(message string) *AppError {
	return New(ErrCodePaymentProvider, message)
}

func GeocodingError(message string) *AppError {
	return New(ErrCodeGeocoding, message)
}

func RecaptchaError(message string) *AppError {
	return New(ErrCodeRecaptchaError, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabase, "Database error")
}

func Timeout() *AppError {
	return New(ErrCodeTimeout, "The backend did not answer in time")
}

// ============================================================
// Helpers
// ============================================================

// StatusToCode maps a backend HTTP status to the closest local error code.
func StatusToCode(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrCodeAccessDenied
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusConflict:
		return ErrCodeConflict
	case status == http.StatusTooManyRequests:
		return ErrCodeTooManyRequests
	case status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 400 && status < 500:
		return ErrCodeValidation
	default:
		return ErrCodeExternalService
	}
}

func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeTokenExpired,
		ErrCodeInvalidToken, ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case ErrCodeAccessDenied, ErrCodeUserBlocked:
		return http.StatusForbidden
	case ErrCodeValidation, ErrCodeInvalidInput, ErrCodeMissingField, ErrCodeInvalidFormat,
		ErrCodeInvalidEmail, ErrCodeInvalidPassword, ErrCodeOTPExpired, ErrCodeOTPInvalid,
		ErrCodeOTPFormat:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeFlowNotFound:
		return http.StatusNotFound
	case ErrCodeAlreadyExists, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeBusinessRule, ErrCodeInvalidState, ErrCodePaymentFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeBlocked, ErrCodeResendCooldown, ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case ErrCodeExternalService, ErrCodePaymentProvider, ErrCodeGeocoding, ErrCodeRecaptchaError:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func captureStack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// AsAppError finds an AppError anywhere in the chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// ToAppError converts any error to AppError
func ToAppError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Wrap(err, ErrCodeInternal, "Internal server error")
}

// FieldErrors collects per-input validation messages for a form
type FieldErrors map[string]string

// Add records message for field unless the field already has one or the
// message is empty.
func (f FieldErrors) Add(field, message string) {
	if message == "" {
		return
	}
	if _, ok := f[field]; !ok {
		f[field] = message
	}
}

// Err is a validation error carrying the messages under "errors", nil when empty
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return ValidationError("Please fix the highlighted fields").WithField("errors", map[string]string(f))
}
