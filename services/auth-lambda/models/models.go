package models

import (
	"time"

	"github.com/event-admin-services/common/gate"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/session"
)

// LoginRequest represents login request body
type LoginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptchaToken"`
	Language       string `json:"language"`
}

// RegisterRequest represents register request body
type RegisterRequest struct {
	FullName       string `json:"fullName"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// VerifyCodeRequest submits a code to an open verification flow
type VerifyCodeRequest struct {
	FlowID   string `json:"flowId"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// ResendRequest asks for a new code on an open flow
type ResendRequest struct {
	FlowID string `json:"flowId"`
}

// ForgotPasswordRequest starts the password reset flow
type ForgotPasswordRequest struct {
	Email          string `json:"email"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// ResetPasswordRequest sets the new password once the OTP was verified
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
	ResetToken      string `json:"resetToken"`
}

// Authenticated is what the backend answers to a successful login or IP verification
type Authenticated struct {
	User                   session.User
	Permissions            permission.Set
	AccessToken            string
	RefreshToken           string
	RequiresIPVerification bool
}

// SessionView is the client-visible part of a session; tokens never leave the gateway
type SessionView struct {
	User        session.User       `json:"user"`
	Permissions []permission.Grant `json:"permissions"`
	Language    string             `json:"language"`
	LastPath    string             `json:"lastPath,omitempty"`
	ExpiresAt   time.Time          `json:"expiresAt"`
}

// NewSessionView builds the view of s
func NewSessionView(s *session.Session) SessionView {
	return SessionView{
		User:        s.User,
		Permissions: s.Permissions.Grants(),
		Language:    s.Language,
		LastPath:    s.LastPath,
		ExpiresAt:   s.ExpiresAt,
	}
}

// LoginResult is either a new session or an IP verification flow to complete
type LoginResult struct {
	Session      *SessionView   `json:"session,omitempty"`
	Verification *gate.Snapshot `json:"verification,omitempty"`

	Cookie string `json:"-"`
}

// OTPResult is answered once the reset code was accepted
type OTPResult struct {
	Verification gate.Snapshot `json:"verification"`
	ResetToken   string        `json:"resetToken"`
	Email        string        `json:"email"`
}
