// Package backend is the network layer: every call to the booking backend
// API goes through Client, which adds credentials and headers and refreshes
// the session's access token on 401.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/metrics"
	"github.com/event-admin-services/common/session"
)

const (
	RefreshPath = "/auth/refresh-token"

	headerRequestID  = "X-Request-Id"
	headerServiceKey = "X-Service-Key"

	// refresh ahead of expiry so a request does not race the token's exp
	refreshSkew = 30 * time.Second

	maxResponseBytes = 10 << 20
)

// Config for the backend client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	ServiceKey string
}

// TokenStore loads and persists session tokens (session.Manager)
type TokenStore interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) (*session.Session, error)
}

// File is one uploaded file of a multipart request
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Multipart is a form body with files
type Multipart struct {
	Fields map[string]string
	Files  []File
}

// Request describes one backend call
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      interface{}
	Multipart *Multipart
	// Session supplies the bearer token; nil for anonymous calls (login, OTP).
	Session *session.Session
	// Service authenticates with the service key (webhook-originated calls).
	Service bool
	// Cookies are forwarded verbatim
	Cookies []*http.Cookie
}

// Response is a raw backend answer
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body, unwrapping a {"data": ...} envelope when present
func (r *Response) Decode(v interface{}) error {
	body := r.Body
	if data := gjson.GetBytes(body, "data"); data.Exists() && (data.IsObject() || data.IsArray()) {
		body = []byte(data.Raw)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeExternalService, "Unexpected response from backend")
	}
	return nil
}

// JSON exposes the body for path lookups
func (r *Response) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// Error is a non-2xx backend answer
type Error struct {
	Status  int
	Message string
	Body    []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsClientError reports whether err carries a backend 4xx
func IsClientError(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Status >= 400 && be.Status < 500
}

// StatusOf returns the backend status carried by err, or 0
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}

// Client talks to the backend API
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenStore
	group  singleflight.Group
	log    *logger.Logger
}

// NewClient creates a client. tokens may be nil when no session refresh is needed.
func NewClient(cfg Config, tokens TokenStore) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		log:    logger.Default().With("component", "backend"),
	}
}

// Do sends req. On a 401 for a session request the access token is
// refreshed once and the request retried once; a failed refresh is
// SESSION_EXPIRED.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	refreshed := false
	if req.Session != nil && req.Session.RefreshToken != "" && jwt.ExpiresWithin(req.Session.AccessToken, refreshSkew) {
		if err := c.refresh(ctx, req.Session); err != nil {
			return nil, err
		}
		refreshed = true
	}

	resp, err := c.send(ctx, req, body, contentType, refreshed)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized && req.Session != nil && !refreshed {
		if err := c.refresh(ctx, req.Session); err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, req, body, contentType, true)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			return nil, apperrors.SessionExpired()
		}
	}

	if resp.Status >= 300 {
		return resp, toError(resp)
	}
	return resp, nil
}

// Get decodes the response of a GET into out (may be nil)
func (c *Client) Get(ctx context.Context, sess *session.Session, path string, query url.Values, out interface{}) error {
	return c.call(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Session: sess}, out)
}

// Post sends a JSON body and decodes the answer into out (may be nil)
func (c *Client) Post(ctx context.Context, sess *session.Session, path string, body, out interface{}) error {
	return c.call(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Session: sess}, out)
}

// Put sends a JSON body and decodes the answer into out (may be nil)
func (c *Client) Put(ctx context.Context, sess *session.Session, path string, body, out interface{}) error {
	return c.call(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Session: sess}, out)
}

// Delete removes a resource
func (c *Client) Delete(ctx context.Context, sess *session.Session, path string) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: path, Session: sess}, nil)
}

func (c *Client) call(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) send(ctx context.Context, req Request, body []byte, contentType string, refreshed bool) (*Response, error) {
	endpoint := c.cfg.BaseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to build backend request")
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	requestID := logger.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set(headerRequestID, requestID)
	if req.Session != nil && req.Session.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Session.AccessToken)
	}
	if req.Service && c.cfg.ServiceKey != "" {
		httpReq.Header.Set(headerServiceKey, c.cfg.ServiceKey)
	}
	for _, ck := range req.Cookies {
		httpReq.AddCookie(ck)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.log.WithContext(ctx).LogBackendCall(logger.BackendCall{
			Method: req.Method, Endpoint: req.Path, Duration: elapsed, Refreshed: refreshed, Error: err.Error(),
		})
		metrics.TrackBackendCall(req.Method, 0, elapsed)
		if ctx.Err() != nil {
			return nil, apperrors.Timeout().WithCause(err)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExternalService, "The backend service is unavailable")
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExternalService, "Failed to read backend response")
	}

	c.log.WithContext(ctx).LogBackendCall(logger.BackendCall{
		Method: req.Method, Endpoint: req.Path, Status: httpResp.StatusCode, Duration: elapsed, Refreshed: refreshed,
	})
	metrics.TrackBackendCall(req.Method, httpResp.StatusCode, elapsed)

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// RefreshSession exchanges the session's refresh token now (explicit refresh endpoint)
func (c *Client) RefreshSession(ctx context.Context, sess *session.Session) error {
	return c.refresh(ctx, sess)
}

type tokenPair struct {
	access  string
	refresh string
}

// refresh exchanges the session's refresh token. Concurrent 401s of the same
// session share one refresh call, and a request holding a copy of the session
// older than the last refresh picks up the stored tokens instead of spending
// a refresh token the backend has already rotated.
func (c *Client) refresh(ctx context.Context, sess *session.Session) error {
	if c.adoptStored(ctx, sess) {
		metrics.TrackRefresh("reused")
		return nil
	}
	if sess.RefreshToken == "" {
		metrics.TrackRefresh("failed")
		return apperrors.SessionExpired()
	}

	v, err, _ := c.group.Do(sess.ID, func() (interface{}, error) {
		body, _ := json.Marshal(map[string]string{"refreshToken": sess.RefreshToken})
		resp, err := c.send(ctx, Request{Method: http.MethodPost, Path: RefreshPath}, body, "application/json", false)
		if err != nil {
			return nil, err
		}
		if resp.Status >= 300 {
			return nil, toError(resp)
		}
		doc := resp.JSON()
		pair := tokenPair{
			access:  firstString(doc, "accessToken", "data.accessToken", "token", "data.token"),
			refresh: firstString(doc, "refreshToken", "data.refreshToken"),
		}
		if pair.access == "" {
			return nil, errors.New("refresh response carried no access token")
		}
		if c.tokens != nil {
			if _, err := c.tokens.UpdateTokens(ctx, sess.ID, pair.access, pair.refresh); err != nil {
				return nil, err
			}
		}
		return pair, nil
	})
	if err != nil {
		metrics.TrackRefresh("failed")
		c.log.WithContext(ctx).WithError(err).Warn("token refresh failed", "session_id", sess.ID)
		return apperrors.SessionExpired().WithCause(err)
	}

	pair := v.(tokenPair)
	sess.AccessToken = pair.access
	if pair.refresh != "" {
		sess.RefreshToken = pair.refresh
	}
	metrics.TrackRefresh("ok")
	return nil
}

// adoptStored copies newer stored tokens into sess. It reports true when the
// stored access token can be used without refreshing.
func (c *Client) adoptStored(ctx context.Context, sess *session.Session) bool {
	if c.tokens == nil || sess.ID == "" {
		return false
	}
	stored, err := c.tokens.Get(ctx, sess.ID)
	if err != nil || stored.AccessToken == "" || stored.AccessToken == sess.AccessToken {
		return false
	}
	sess.AccessToken = stored.AccessToken
	sess.RefreshToken = stored.RefreshToken
	return !jwt.ExpiresWithin(stored.AccessToken, refreshSkew)
}

func encodeBody(req Request) ([]byte, string, error) {
	switch {
	case req.Multipart != nil:
		return encodeMultipart(req.Multipart)
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to encode request body")
		}
		return data, "application/json", nil
	}
	return nil, "", nil
}

func encodeMultipart(m *Multipart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to encode form")
		}
	}
	for _, f := range m.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to encode file")
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to encode file")
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to encode form")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// messagePaths are tried in order to find a human-readable error
var messagePaths = []string{"message", "error.message", "error", "errors.0.message", "errors.0", "detail"}

// ErrorMessage extracts the backend's error message, or fallback
func ErrorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}
	doc := gjson.ParseBytes(body)
	if msg := firstString(doc, messagePaths...); msg != "" {
		return msg
	}
	return fallback
}

func toError(resp *Response) error {
	msg := ErrorMessage(resp.Body, fallbackMessage(resp.Status))
	be := &Error{Status: resp.Status, Message: msg, Body: resp.Body}
	return apperrors.Wrap(be, apperrors.StatusToCode(resp.Status), msg).WithStatus(mapStatus(resp.Status))
}

// mapStatus keeps 4xx as-is for the client; 5xx becomes 502
func mapStatus(status int) int {
	if status >= 400 && status < 500 {
		return status
	}
	return http.StatusBadGateway
}

func fallbackMessage(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "The requested resource was not found"
	case status == http.StatusForbidden:
		return "You do not have permission to perform this action"
	case status >= 400 && status < 500:
		return "The request was rejected"
	default:
		return "Something went wrong, please try again"
	}
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return v.String()
		}
	}
	return ""
}
