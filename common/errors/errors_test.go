package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{SessionExpired(), http.StatusUnauthorized},
		{AccessDenied(), http.StatusForbidden},
		{InvalidToken("stale link"), http.StatusUnauthorized},
		{InvalidInput("month", "bad"), http.StatusBadRequest},
		{InvalidEmail("Email is invalid"), http.StatusBadRequest},
		{NotFound("Event"), http.StatusNotFound},
		{InvalidState("nope"), http.StatusUnprocessableEntity},
		{BusinessError("not yourself"), http.StatusUnprocessableEntity},
		{Timeout(), http.StatusGatewayTimeout},
		{Blocked(30), http.StatusTooManyRequests},
		{PaymentProviderError("down"), http.StatusBadGateway},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestWrappedChain(t *testing.T) {
	base := SessionExpired()
	err := fmt.Errorf("refresh: %w", base)

	assert.True(t, IsCode(err, ErrCodeSessionExpired))
	assert.True(t, stderrors.Is(err, SessionExpired()))
	assert.False(t, IsCode(stderrors.New("plain"), ErrCodeSessionExpired))
	assert.Equal(t, ErrCodeInternal, ToAppError(stderrors.New("plain")).Code)
}

func TestFieldErrors(t *testing.T) {
	errs := FieldErrors{}
	assert.NoError(t, errs.Err())

	errs.Add("name", "")
	errs.Add("name", "Name is required")
	errs.Add("name", "Name is too long")
	errs.Add("price", "Price must not be negative")

	appErr, ok := AsAppError(errs.Err())
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, appErr.Code)
	assert.Equal(t, map[string]string{
		"name":  "Name is required",
		"price": "Price must not be negative",
	}, appErr.Fields["errors"])
}
