package repository

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/event-admin-services/common/backend"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/auth-lambda/models"
)

// Backend auth endpoints
const (
	pathLogin          = "/auth/login"
	pathRegister       = "/auth/register"
	pathVerifyIP       = "/auth/verify-ip"
	pathResendIPCode   = "/auth/resend-ip-code"
	pathForgotPassword = "/auth/forgot-password"
	pathVerifyOTP      = "/auth/verify-otp"
	pathResetPassword  = "/auth/reset-password"
	pathLogout         = "/auth/logout"
	pathMe             = "/auth/me"
)

// AuthRepository talks to the backend auth API
type AuthRepository struct {
	client *backend.Client
}

// NewAuthRepository creates a new auth repository
func NewAuthRepository(client *backend.Client) *AuthRepository {
	return &AuthRepository{client: client}
}

// Login checks credentials. clientIP lets the backend decide whether this
// device needs IP verification.
func (r *AuthRepository) Login(ctx context.Context, email, password, clientIP string) (*models.Authenticated, error) {
	resp, err := r.client.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body:   map[string]string{"email": email, "password": password, "ipAddress": clientIP},
	})
	if err != nil {
		if backend.StatusOf(err) == http.StatusUnauthorized {
			return nil, apperrors.InvalidCredentials().WithCause(err)
		}
		return nil, err
	}
	return parseAuthenticated(resp.JSON())
}

// Register creates an account
func (r *AuthRepository) Register(ctx context.Context, req models.RegisterRequest) error {
	return r.client.Post(ctx, nil, pathRegister, map[string]string{
		"fullName": req.FullName,
		"phone":    req.Phone,
		"email":    req.Email,
		"password": req.Password,
	}, nil)
}

// VerifyIP submits the new-device code and answers with the login payload
func (r *AuthRepository) VerifyIP(ctx context.Context, email, code string) (*models.Authenticated, error) {
	resp, err := r.client.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   pathVerifyIP,
		Body:   map[string]string{"email": email, "code": code},
	})
	if err != nil {
		return nil, err
	}
	return parseAuthenticated(resp.JSON())
}

// ResendIPCode asks the backend to mail a new device code
func (r *AuthRepository) ResendIPCode(ctx context.Context, email string) error {
	return r.client.Post(ctx, nil, pathResendIPCode, map[string]string{"email": email}, nil)
}

// ForgotPassword asks the backend to mail a reset OTP
func (r *AuthRepository) ForgotPassword(ctx context.Context, email string) error {
	return r.client.Post(ctx, nil, pathForgotPassword, map[string]string{"email": email}, nil)
}

// VerifyOTP checks a reset OTP without consuming it
func (r *AuthRepository) VerifyOTP(ctx context.Context, email, otp string) error {
	return r.client.Post(ctx, nil, pathVerifyOTP, map[string]string{"email": email, "otp": otp}, nil)
}

// ResetPassword sets the new password
func (r *AuthRepository) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	return r.client.Post(ctx, nil, pathResetPassword, map[string]string{
		"email":       email,
		"otp":         otp,
		"newPassword": newPassword,
	}, nil)
}

// Logout revokes the refresh token
func (r *AuthRepository) Logout(ctx context.Context, sess *session.Session) error {
	return r.client.Post(ctx, sess, pathLogout, map[string]string{"refreshToken": sess.RefreshToken}, nil)
}

// Profile reloads the signed-in user and the role's permissions
func (r *AuthRepository) Profile(ctx context.Context, sess *session.Session) (*models.Authenticated, error) {
	resp, err := r.client.Do(ctx, backend.Request{Method: http.MethodGet, Path: pathMe, Session: sess})
	if err != nil {
		return nil, err
	}
	doc := unwrap(resp.JSON())
	if !doc.Get("user").Exists() {
		doc = gjson.Parse(`{"user":` + doc.Raw + `}`)
	}
	return parseUser(doc)
}

// Refresh exchanges the session's refresh token
func (r *AuthRepository) Refresh(ctx context.Context, sess *session.Session) error {
	return r.client.RefreshSession(ctx, sess)
}

func unwrap(doc gjson.Result) gjson.Result {
	if data := doc.Get("data"); data.IsObject() {
		return data
	}
	return doc
}

// parseAuthenticated reads the login payload. Only an IP verification answer
// may come without tokens.
func parseAuthenticated(root gjson.Result) (*models.Authenticated, error) {
	doc := unwrap(root)
	if firstBool(doc, "requiresIpVerification", "requireIpVerification", "ipVerificationRequired") {
		return &models.Authenticated{RequiresIPVerification: true}, nil
	}

	a, err := parseUser(doc)
	if err != nil {
		return nil, err
	}
	a.AccessToken = firstString(doc, "accessToken", "token")
	a.RefreshToken = firstString(doc, "refreshToken")
	if a.AccessToken == "" {
		return nil, apperrors.ExternalServiceError("backend", "Login response carried no access token")
	}
	return a, nil
}

func parseUser(doc gjson.Result) (*models.Authenticated, error) {
	u := doc.Get("user")
	if !u.Exists() {
		return nil, apperrors.ExternalServiceError("backend", "Login response carried no user")
	}
	a := &models.Authenticated{
		User: session.User{
			ID:     u.Get("id").String(),
			Name:   firstString(u, "fullName", "name"),
			Email:  u.Get("email").String(),
			Role:   firstString(u, "role.name", "roleName", "role"),
			Avatar: firstString(u, "avatar", "avatarUrl"),
		},
	}
	for _, p := range []string{"permissions", "user.role.permissions", "user.permissions", "role.permissions"} {
		if raw := doc.Get(p); raw.Exists() {
			a.Permissions = permission.Normalize([]byte(raw.Raw))
			break
		}
	}
	return a, nil
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstBool(doc gjson.Result, paths ...string) bool {
	for _, p := range paths {
		if doc.Get(p).Bool() {
			return true
		}
	}
	return false
}
