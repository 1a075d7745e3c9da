package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/event-admin-services/common/errors"
)

func TestErrorUsesAppErrorStatus(t *testing.T) {
	resp, err := Error(apperrors.Blocked(900))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body APIResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "E4011", body.Code)
	assert.Equal(t, float64(900), body.Fields["retryAfter"])
}

func TestErrorHidesInternalCause(t *testing.T) {
	resp, _ := Error(fmt.Errorf("dial tcp 10.0.0.3:3306: refused"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, resp.Body, "10.0.0.3")
}

func TestSessionExpiredCarriesRedirect(t *testing.T) {
	resp, _ := Error(apperrors.SessionExpired())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Body, `"redirect":"/login"`)
}

func TestSessionCookie(t *testing.T) {
	c := SessionCookie("admin_session", "abc", time.Hour, true)
	assert.True(t, strings.HasPrefix(c, "admin_session=abc;"))
	assert.Contains(t, c, "Max-Age=3600")
	assert.Contains(t, c, "Secure")

	cleared := SessionCookie("admin_session", "", 0, true)
	assert.Contains(t, cleared, "Max-Age=0")
}

func TestWithCookieAppends(t *testing.T) {
	resp, _ := Message("ok")
	resp = WithCookie(resp, "a=1")
	resp = WithCookie(resp, "b=2")
	assert.Equal(t, []string{"a=1", "b=2"}, resp.MultiValueHeaders["Set-Cookie"])
}
