package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/event-admin-services/common/backend"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/gate"
	"github.com/event-admin-services/common/hash"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/validator"
	"github.com/event-admin-services/services/auth-lambda/models"
	"github.com/event-admin-services/services/auth-lambda/repository"
)

// reCAPTCHA actions
const (
	ActionLogin          = "login"
	ActionRegister       = "register"
	ActionForgotPassword = "forgot_password"
)

// SupportedLanguages of the dashboard
var SupportedLanguages = map[string]bool{"en": true, "vi": true}

// Captcha verifies a bot-protection token
type Captcha interface {
	Check(ctx context.Context, token, action, remoteIP string) error
}

// AuthUseCase handles authentication business logic
type AuthUseCase struct {
	repo     *repository.AuthRepository
	sessions *session.Manager
	otp      *gate.Gate
	ip       *gate.Gate
	captcha  Captcha
	log      *logger.Logger
}

// Deps are the collaborators of AuthUseCase
type Deps struct {
	Repo     *repository.AuthRepository
	Sessions *session.Manager
	OTPGate  *gate.Gate
	IPGate   *gate.Gate
	Captcha  Captcha
}

// NewAuthUseCase creates a new auth use case
func NewAuthUseCase(d Deps) *AuthUseCase {
	return &AuthUseCase{
		repo:     d.Repo,
		sessions: d.Sessions,
		otp:      d.OTPGate,
		ip:       d.IPGate,
		captcha:  d.Captcha,
		log:      logger.Default().With("component", "auth"),
	}
}

// Login checks credentials. A known device gets a session right away;
// an unknown one gets an IP verification flow.
func (uc *AuthUseCase) Login(ctx context.Context, req models.LoginRequest, clientIP string) (*models.LoginResult, error) {
	email := validator.NormalizeEmail(req.Email)
	if msg := validator.GetEmailError(email); msg != "" {
		return nil, apperrors.InvalidEmail(msg)
	}
	if req.Password == "" {
		return nil, apperrors.InvalidInput("password", "Password is required")
	}
	if err := uc.captcha.Check(ctx, req.RecaptchaToken, ActionLogin, clientIP); err != nil {
		return nil, err
	}

	auth, err := uc.repo.Login(ctx, email, req.Password, clientIP)
	if err != nil {
		uc.log.WithContext(ctx).Warn("login failed", "email", hash.MaskEmail(email), "ip", clientIP)
		return nil, err
	}

	if auth.RequiresIPVerification {
		snap, err := uc.ip.Open(ctx, email)
		if err != nil {
			return nil, err
		}
		uc.log.WithContext(ctx).Info("login requires ip verification", "email", hash.MaskEmail(email), "ip", clientIP)
		return &models.LoginResult{Verification: &snap}, nil
	}

	return uc.startSession(ctx, auth, req.Language)
}

// Register validates the sign-up form and forwards it
func (uc *AuthUseCase) Register(ctx context.Context, req models.RegisterRequest, clientIP string) error {
	req.Email = validator.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)

	if msg := validator.GetFullNameError(req.FullName); msg != "" {
		return apperrors.InvalidInput("fullName", msg)
	}
	if msg := validator.GetPhoneError(req.Phone); msg != "" {
		return apperrors.InvalidInput("phone", msg)
	}
	if msg := validator.GetEmailError(req.Email); msg != "" {
		return apperrors.InvalidEmail(msg)
	}
	if msg := validator.GetPasswordError(req.Password); msg != "" {
		return apperrors.InvalidInput("password", msg)
	}
	if err := uc.captcha.Check(ctx, req.RecaptchaToken, ActionRegister, clientIP); err != nil {
		return err
	}
	return uc.repo.Register(ctx, req)
}

// VerifyIP submits the new-device code; success creates the session
func (uc *AuthUseCase) VerifyIP(ctx context.Context, req models.VerifyCodeRequest) (*models.LoginResult, error) {
	if req.FlowID == "" {
		return nil, apperrors.MissingField("flowId")
	}

	var auth *models.Authenticated
	snap, err := uc.ip.Submit(ctx, req.FlowID, req.Code, func(ctx context.Context, identity, code string) error {
		a, err := uc.repo.VerifyIP(ctx, identity, code)
		if err != nil {
			return rejection(err)
		}
		auth = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := uc.startSession(ctx, auth, req.Language)
	if err != nil {
		return nil, err
	}
	result.Verification = &snap
	return result, nil
}

// ResendIP mails a new device code
func (uc *AuthUseCase) ResendIP(ctx context.Context, flowID string) (gate.Snapshot, error) {
	return uc.ip.Resend(ctx, flowID, uc.repo.ResendIPCode)
}

// ForgotPassword opens the OTP flow and has the backend mail a code. A
// blocked identity gets its flow back without a new code being sent, and a
// second request inside the resend cooldown is refused.
func (uc *AuthUseCase) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest, clientIP string) (gate.Snapshot, error) {
	email := validator.NormalizeEmail(req.Email)
	if msg := validator.GetEmailError(email); msg != "" {
		return gate.Snapshot{}, apperrors.InvalidEmail(msg)
	}
	if err := uc.captcha.Check(ctx, req.RecaptchaToken, ActionForgotPassword, clientIP); err != nil {
		return gate.Snapshot{}, err
	}
	if wait := uc.otp.ResendWait(email); wait > 0 {
		return gate.Snapshot{}, apperrors.ResendCooldown(wait)
	}

	snap, err := uc.otp.Open(ctx, email)
	if err != nil {
		return gate.Snapshot{}, err
	}
	if snap.State == gate.StateBlocked {
		return snap, nil
	}

	if err := uc.repo.ForgotPassword(ctx, email); err != nil {
		uc.otp.Close(snap.FlowID)
		return gate.Snapshot{}, err
	}
	uc.log.WithContext(ctx).Info("password reset code requested", "email", hash.MaskEmail(email))
	return snap, nil
}

// VerifyOTP submits the reset code. Success hands out the token that
// unlocks the reset-password step.
func (uc *AuthUseCase) VerifyOTP(ctx context.Context, req models.VerifyCodeRequest) (*models.OTPResult, error) {
	if req.FlowID == "" {
		return nil, apperrors.MissingField("flowId")
	}
	email, ok := uc.otp.Identity(req.FlowID)
	if !ok {
		return nil, apperrors.FlowNotFound()
	}

	snap, err := uc.otp.Submit(ctx, req.FlowID, req.Code, func(ctx context.Context, identity, code string) error {
		return rejection(uc.repo.VerifyOTP(ctx, identity, code))
	})
	if err != nil {
		return nil, err
	}

	token, err := jwt.GenerateResetToken(email)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to issue reset token")
	}
	return &models.OTPResult{Verification: snap, ResetToken: token, Email: email}, nil
}

// ResendOTP mails a new reset code
func (uc *AuthUseCase) ResendOTP(ctx context.Context, flowID string) (gate.Snapshot, error) {
	return uc.otp.Resend(ctx, flowID, uc.repo.ForgotPassword)
}

// ResetPassword sets the new password. The reset token proves the OTP step
// was passed for this email.
func (uc *AuthUseCase) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	email := validator.NormalizeEmail(req.Email)
	if msg := validator.GetEmailError(email); msg != "" {
		return apperrors.InvalidEmail(msg)
	}
	if msg := validator.GetOTPError(req.OTP); msg != "" {
		return apperrors.InvalidInput("otp", msg)
	}
	if msg := validator.GetPasswordError(req.NewPassword); msg != "" {
		return apperrors.InvalidInput("newPassword", msg)
	}
	if req.NewPassword != req.ConfirmPassword {
		return apperrors.InvalidInput("confirmPassword", "Passwords do not match")
	}
	if err := jwt.ValidateResetToken(req.ResetToken, email); err != nil {
		return apperrors.InvalidToken("The reset link has expired, please request a new code").
			WithField("redirect", "/forgot-password").WithCause(err)
	}

	if err := uc.repo.ResetPassword(ctx, email, req.OTP, req.NewPassword); err != nil {
		return err
	}
	uc.log.WithContext(ctx).Info("password reset", "email", hash.MaskEmail(email))
	return nil
}

// FlowStatus returns the snapshot of an OTP or IP flow
func (uc *AuthUseCase) FlowStatus(kind, flowID string) (gate.Snapshot, error) {
	g, err := uc.gate(kind)
	if err != nil {
		return gate.Snapshot{}, err
	}
	return g.Status(flowID)
}

// CloseFlow tears a flow down when the user leaves the screen
func (uc *AuthUseCase) CloseFlow(kind, flowID string) error {
	g, err := uc.gate(kind)
	if err != nil {
		return err
	}
	g.Close(flowID)
	return nil
}

// Refresh exchanges the refresh token now
func (uc *AuthUseCase) Refresh(ctx context.Context, sess *session.Session) (models.SessionView, error) {
	if err := uc.repo.Refresh(ctx, sess); err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(sess), nil
}

// Logout revokes tokens at the backend (best effort) and destroys the session
func (uc *AuthUseCase) Logout(ctx context.Context, sess *session.Session) error {
	if err := uc.repo.Logout(ctx, sess); err != nil {
		uc.log.WithContext(ctx).WithError(err).Warn("backend logout failed")
	}
	return uc.sessions.Destroy(ctx, sess.ID)
}

// UpdatePreferences stores language and last-visited path
func (uc *AuthUseCase) UpdatePreferences(ctx context.Context, sess *session.Session, p session.Preferences) (models.SessionView, error) {
	p.Language = strings.ToLower(strings.TrimSpace(p.Language))
	if p.Language != "" && !SupportedLanguages[p.Language] {
		return models.SessionView{}, apperrors.InvalidInput("language", "Unsupported language")
	}
	if p.LastPath != "" && !strings.HasPrefix(p.LastPath, "/") {
		return models.SessionView{}, apperrors.InvalidInput("lastPath", "Path must start with /")
	}
	updated, err := uc.sessions.UpdatePreferences(ctx, sess.ID, p)
	if err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(updated), nil
}

// ReloadPermissions refreshes the cached role-permission snapshot
func (uc *AuthUseCase) ReloadPermissions(ctx context.Context, sess *session.Session) (models.SessionView, error) {
	profile, err := uc.repo.Profile(ctx, sess)
	if err != nil {
		return models.SessionView{}, err
	}
	updated, err := uc.sessions.UpdatePermissions(ctx, sess.ID, profile.Permissions)
	if err != nil {
		return models.SessionView{}, err
	}
	return models.NewSessionView(updated), nil
}

// CookieMaxAge is the lifetime of the session cookie
func (uc *AuthUseCase) CookieMaxAge() time.Duration {
	return uc.sessions.TTL()
}

func (uc *AuthUseCase) startSession(ctx context.Context, auth *models.Authenticated, language string) (*models.LoginResult, error) {
	if auth == nil || auth.AccessToken == "" {
		return nil, apperrors.ExternalServiceError("backend", "Login response carried no session")
	}
	language = strings.ToLower(language)
	if !SupportedLanguages[language] {
		language = ""
	}
	sess, cookie, err := uc.sessions.Create(ctx, session.CreateParams{
		User:         auth.User,
		Permissions:  auth.Permissions,
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Language:     language,
	})
	if err != nil {
		return nil, err
	}
	view := models.NewSessionView(sess)
	return &models.LoginResult{Session: &view, Cookie: cookie}, nil
}

func (uc *AuthUseCase) gate(kind string) (*gate.Gate, error) {
	switch gate.Kind(kind) {
	case gate.KindOTP:
		return uc.otp, nil
	case gate.KindIP:
		return uc.ip, nil
	}
	return nil, apperrors.InvalidInput("kind", fmt.Sprintf("Unknown verification kind %q", kind))
}

// rejection marks a backend 4xx as a wrong code so the gate counts the
// attempt. Rate limiting by the backend is not the user's mistake.
func rejection(err error) error {
	if err == nil {
		return nil
	}
	if backend.IsClientError(err) && backend.StatusOf(err) != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", gate.ErrRejected, err)
	}
	return err
}
