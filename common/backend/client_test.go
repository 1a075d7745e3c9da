package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/session"
)

type fakeTokens struct {
	mu     sync.Mutex
	calls  int
	last   [2]string
	stored map[string]session.Session
}

func (f *fakeTokens) Get(_ context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stored[id]
	if !ok {
		return nil, apperrors.SessionExpired()
	}
	return &s, nil
}

func (f *fakeTokens) UpdateTokens(_ context.Context, id, access, refresh string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = [2]string{access, refresh}
	if f.stored == nil {
		f.stored = map[string]session.Session{}
	}
	s := session.Session{ID: id, AccessToken: access, RefreshToken: refresh}
	f.stored[id] = s
	return &s, nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenStore) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/api/", Timeout: 2 * time.Second, ServiceKey: "svc"}, tokens)
}

func TestGetUnwrapsDataEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.Write([]byte(`{"data":[{"id":"e1"},{"id":"e2"}]}`))
	}, nil)

	var out []struct {
		ID string `json:"id"`
	}
	sess := &session.Session{ID: "s1", AccessToken: "a1"}
	err := c.Get(context.Background(), sess, "/events", url.Values{"page": {"2"}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "e2", out[1].ID)
}

func TestBackendErrorsKeepMessageAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"message":"Category name already used"}}`))
	}, nil)

	err := c.Post(context.Background(), nil, "/categories", map[string]string{"name": "Music"}, nil)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeConflict, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	assert.Equal(t, "Category name already used", appErr.Message)
	assert.True(t, IsClientError(err))
	assert.Equal(t, http.StatusConflict, StatusOf(err))
}

func TestServerErrorBecomesBadGateway(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html>oops</html>`))
	}, nil)

	err := c.Delete(context.Background(), nil, "/events/1")
	appErr := apperrors.ToAppError(err)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
	assert.Equal(t, "Something went wrong, please try again", appErr.Message)
	assert.False(t, IsClientError(err))
}

func TestRefreshOn401AndRetryOnce(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api"+RefreshPath {
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"refreshToken":"r1"}`, string(body))
			w.Write([]byte(`{"data":{"accessToken":"a2","refreshToken":"r2"}}`))
			return
		}
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, nil)
	tokens := &fakeTokens{}
	c.tokens = tokens

	sess := &session.Session{ID: "s1", AccessToken: "a1", RefreshToken: "r1"}
	err := c.Get(context.Background(), sess, "/bookings", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "a2", sess.AccessToken)
	assert.Equal(t, "r2", sess.RefreshToken)
	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, [2]string{"a2", "r2"}, tokens.last)
}

func TestStaleSessionCopyUsesRotatedTokens(t *testing.T) {
	var refreshes int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, RefreshPath) {
			atomic.AddInt32(&refreshes, 1)
			// r1 was rotated to r2 by an earlier request
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"refresh token revoked"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, nil)
	tokens := &fakeTokens{stored: map[string]session.Session{
		"s1": {ID: "s1", AccessToken: "a2", RefreshToken: "r2"},
	}}
	c.tokens = tokens

	stale := &session.Session{ID: "s1", AccessToken: "a1", RefreshToken: "r1"}
	err := c.Get(context.Background(), stale, "/bookings", nil, nil)
	require.NoError(t, err)

	assert.Zero(t, atomic.LoadInt32(&refreshes))
	assert.Zero(t, tokens.calls)
	assert.Equal(t, "a2", stale.AccessToken)
	assert.Equal(t, "r2", stale.RefreshToken)
}

func TestCallerDeadlineIsTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, nil, "/events", nil, nil)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTimeout, appErr.Code)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.HTTPStatus)
}

func TestFailedRefreshIsSessionExpired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, &fakeTokens{})

	sess := &session.Session{ID: "s1", AccessToken: "a1", RefreshToken: "r1"}
	err := c.Get(context.Background(), sess, "/users", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionExpired))
	appErr := apperrors.ToAppError(err)
	assert.Equal(t, "/login", appErr.Fields["redirect"])
}

func TestNoRefreshTokenIsSessionExpired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	err := c.Get(context.Background(), &session.Session{ID: "s1", AccessToken: "a1"}, "/users", nil, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSessionExpired))
}

func TestAnonymous401IsNotRefreshed(t *testing.T) {
	var refreshes int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, RefreshPath) {
			atomic.AddInt32(&refreshes, 1)
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid email or password"}`))
	}, nil)

	err := c.Post(context.Background(), nil, "/auth/login", map[string]string{"email": "a@b.co"}, nil)
	appErr := apperrors.ToAppError(err)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, appErr.Code)
	assert.Equal(t, "Invalid email or password", appErr.Message)
	assert.Zero(t, atomic.LoadInt32(&refreshes))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	var refreshes int32
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, RefreshPath) {
			atomic.AddInt32(&refreshes, 1)
			<-release
			w.Write([]byte(`{"accessToken":"fresh"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}, &fakeTokens{})

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := &session.Session{ID: "shared", AccessToken: "stale", RefreshToken: "r"}
			errs[i] = c.Get(context.Background(), sess, "/events", nil, nil)
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
}

func TestMultipartUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Concert", r.FormValue("title"))
		f, hdr, err := r.FormFile("images")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "poster.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
		json.NewEncoder(w).Encode(map[string]string{"id": "e9"})
	}, nil)

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/events",
		Multipart: &Multipart{
			Fields: map[string]string{"title": "Concert"},
			Files:  []File{{Field: "images", Name: "poster.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "e9", resp.JSON().Get("id").String())
}

func TestServiceKeyHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "svc", r.Header.Get("X-Service-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))
	}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/boost/confirm", Body: map[string]string{}, Service: true})
	assert.NoError(t, err)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "a", ErrorMessage([]byte(`{"message":"a"}`), "x"))
	assert.Equal(t, "b", ErrorMessage([]byte(`{"error":"b"}`), "x"))
	assert.Equal(t, "c", ErrorMessage([]byte(`{"errors":[{"message":"c"}]}`), "x"))
	assert.Equal(t, "x", ErrorMessage([]byte(`not json`), "x"))
	assert.Equal(t, "x", ErrorMessage([]byte(`{"message":""}`), "x"))
}
