package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/event-admin-services/common/bootstrap"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/auth-lambda/models"
	"github.com/event-admin-services/services/auth-lambda/repository"
	"github.com/event-admin-services/services/auth-lambda/usecase"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	useCase      *usecase.AuthUseCase
	cookieName   string
	cookieSecure bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(uc *usecase.AuthUseCase, cookieName string, cookieSecure bool) *AuthHandler {
	return &AuthHandler{useCase: uc, cookieName: cookieName, cookieSecure: cookieSecure}
}

// New wires the auth handler onto a shared runtime
func New(app *bootstrap.App) *AuthHandler {
	uc := usecase.NewAuthUseCase(usecase.Deps{
		Repo:     repository.NewAuthRepository(app.Backend),
		Sessions: app.Sessions,
		OTPGate:  app.OTPGate,
		IPGate:   app.IPGate,
		Captcha:  app.Captcha,
	})
	return NewAuthHandler(uc, app.Config.CookieName, app.Config.CookieSecure)
}

// Routes lists the auth endpoints
func (h *AuthHandler) Routes() []middleware.Route {
	return []middleware.Route{
		{Method: http.MethodPost, Path: "/api/auth/login", Handler: h.HandleLogin, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/register", Handler: h.HandleRegister, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/verify-ip", Handler: h.HandleVerifyIP, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/resend-ip", Handler: h.HandleResendIP, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/forgot-password", Handler: h.HandleForgotPassword, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/verify-otp", Handler: h.HandleVerifyOTP, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/resend-otp", Handler: h.HandleResendOTP, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/auth/reset-password", Handler: h.HandleResetPassword, Public: true, RateLimited: true},
		{Method: http.MethodGet, Path: "/api/auth/verification/{kind}/{flowId}", Handler: h.HandleFlowStatus, Public: true},
		{Method: http.MethodDelete, Path: "/api/auth/verification/{kind}/{flowId}", Handler: h.HandleCloseFlow, Public: true},
		{Method: http.MethodPost, Path: "/api/auth/refresh", Handler: h.HandleRefresh},
		{Method: http.MethodPost, Path: "/api/auth/logout", Handler: h.HandleLogout},
		{Method: http.MethodGet, Path: "/api/auth/me", Handler: h.HandleMe},
		{Method: http.MethodPut, Path: "/api/auth/preferences", Handler: h.HandlePreferences},
		{Method: http.MethodPost, Path: "/api/auth/permissions/reload", Handler: h.HandleReloadPermissions},
	}
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.LoginRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}

	result, err := h.useCase.Login(ctx, req, middleware.ClientIP(request))
	if err != nil {
		return response.Error(err)
	}
	if result.Session == nil {
		// new device: the client moves on to the IP verification screen
		return response.Success(http.StatusAccepted, result)
	}
	return h.withSession(result)
}

// HandleRegister handles POST /api/auth/register
func (h *AuthHandler) HandleRegister(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.RegisterRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	if err := h.useCase.Register(ctx, req, middleware.ClientIP(request)); err != nil {
		return response.Error(err)
	}
	return response.JSON(http.StatusCreated, response.MessageResponse("Account created"))
}

// HandleVerifyIP handles POST /api/auth/verify-ip
func (h *AuthHandler) HandleVerifyIP(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.VerifyCodeRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	result, err := h.useCase.VerifyIP(ctx, req)
	if err != nil {
		return response.Error(err)
	}
	return h.withSession(result)
}

// HandleResendIP handles POST /api/auth/resend-ip
func (h *AuthHandler) HandleResendIP(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.ResendRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	snap, err := h.useCase.ResendIP(ctx, req.FlowID)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, snap)
}

// HandleForgotPassword handles POST /api/auth/forgot-password
func (h *AuthHandler) HandleForgotPassword(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.ForgotPasswordRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	snap, err := h.useCase.ForgotPassword(ctx, req, middleware.ClientIP(request))
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, snap)
}

// HandleVerifyOTP handles POST /api/auth/verify-otp
func (h *AuthHandler) HandleVerifyOTP(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.VerifyCodeRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	result, err := h.useCase.VerifyOTP(ctx, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, result)
}

// HandleResendOTP handles POST /api/auth/resend-otp
func (h *AuthHandler) HandleResendOTP(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.ResendRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	snap, err := h.useCase.ResendOTP(ctx, req.FlowID)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, snap)
}

// HandleResetPassword handles POST /api/auth/reset-password
func (h *AuthHandler) HandleResetPassword(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.ResetPasswordRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	if err := h.useCase.ResetPassword(ctx, req); err != nil {
		return response.Error(err)
	}
	return response.Message("Password has been reset, please sign in")
}

// HandleFlowStatus handles GET /api/auth/verification/{kind}/{flowId}
func (h *AuthHandler) HandleFlowStatus(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	kind, flowID, err := flowParams(request)
	if err != nil {
		return response.Error(err)
	}
	snap, err := h.useCase.FlowStatus(kind, flowID)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, snap)
}

// HandleCloseFlow handles DELETE /api/auth/verification/{kind}/{flowId}
func (h *AuthHandler) HandleCloseFlow(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	kind, flowID, err := flowParams(request)
	if err != nil {
		return response.Error(err)
	}
	if err := h.useCase.CloseFlow(kind, flowID); err != nil {
		return response.Error(err)
	}
	return response.Message("Verification closed")
}

// HandleRefresh handles POST /api/auth/refresh
func (h *AuthHandler) HandleRefresh(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	view, err := h.useCase.Refresh(ctx, sess)
	if err != nil {
		return h.sessionError(err)
	}
	return response.Success(http.StatusOK, view)
}

// HandleLogout handles POST /api/auth/logout
func (h *AuthHandler) HandleLogout(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	if err := h.useCase.Logout(ctx, sess); err != nil {
		return response.Error(err)
	}
	resp, err := response.Message("Signed out")
	return response.WithCookie(resp, response.SessionCookie(h.cookieName, "", 0, h.cookieSecure)), err
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	return response.Success(http.StatusOK, models.NewSessionView(sess))
}

// HandlePreferences handles PUT /api/auth/preferences
func (h *AuthHandler) HandlePreferences(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	var prefs session.Preferences
	if err := middleware.BindJSON(request, &prefs); err != nil {
		return response.Error(err)
	}
	view, err := h.useCase.UpdatePreferences(ctx, sess, prefs)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, view)
}

// HandleReloadPermissions handles POST /api/auth/permissions/reload
func (h *AuthHandler) HandleReloadPermissions(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	view, err := h.useCase.ReloadPermissions(ctx, sess)
	if err != nil {
		return h.sessionError(err)
	}
	return response.Success(http.StatusOK, view)
}

func (h *AuthHandler) withSession(result *models.LoginResult) (events.APIGatewayProxyResponse, error) {
	resp, err := response.Success(http.StatusOK, result)
	cookie := response.SessionCookie(h.cookieName, result.Cookie, h.useCase.CookieMaxAge(), h.cookieSecure)
	return response.WithCookie(resp, cookie), err
}

// sessionError clears the cookie when the session can no longer be refreshed
func (h *AuthHandler) sessionError(err error) (events.APIGatewayProxyResponse, error) {
	resp, rerr := response.Error(err)
	if apperrors.IsCode(err, apperrors.ErrCodeSessionExpired) {
		resp = response.WithCookie(resp, response.SessionCookie(h.cookieName, "", 0, h.cookieSecure))
	}
	return resp, rerr
}

func flowParams(request events.APIGatewayProxyRequest) (string, string, error) {
	kind, err := middleware.PathParam(request, "kind")
	if err != nil {
		return "", "", err
	}
	flowID, err := middleware.PathParam(request, "flowId")
	if err != nil {
		return "", "", err
	}
	return kind, flowID, nil
}
