package handler

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/event-admin-services/common/bootstrap"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/middleware"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/boost-lambda/models"
	"github.com/event-admin-services/services/boost-lambda/repository"
	"github.com/event-admin-services/services/boost-lambda/usecase"
)

const signatureHeader = "Stripe-Signature"

// BoostHandler serves boost plans and checkout
type BoostHandler struct {
	useCase *usecase.BoostUseCase
}

// NewBoostHandler creates a new boost handler
func NewBoostHandler(uc *usecase.BoostUseCase) *BoostHandler {
	return &BoostHandler{useCase: uc}
}

// New wires the boost handler onto a shared runtime
func New(app *bootstrap.App) *BoostHandler {
	repo := repository.NewBoostRepository(app.Backend)
	return NewBoostHandler(usecase.NewBoostUseCase(repo, app.Store, app.Payments, app.Clock))
}

// Routes lists the boost endpoints
func (h *BoostHandler) Routes() []middleware.Route {
	return []middleware.Route{
		{Method: http.MethodGet, Path: "/api/boost/plans", Handler: h.HandlePlans, Feature: permission.FeatureBoost, Permission: permission.View},
		{Method: http.MethodPost, Path: "/api/boost/summary", Handler: h.HandleSummary, Feature: permission.FeatureBoost, Permission: permission.View},
		{Method: http.MethodPost, Path: "/api/boost/checkout", Handler: h.HandleCheckout, Feature: permission.FeatureBoost, Permission: permission.Create, RateLimited: true},
		{Method: http.MethodPost, Path: "/api/boost/webhook", Handler: h.HandleWebhook, Public: true},
	}
}

// HandlePlans handles GET /api/boost/plans
func (h *BoostHandler) HandlePlans(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	plans, err := h.useCase.Plans(ctx, sess)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, plans)
}

// HandleSummary handles POST /api/boost/summary
func (h *BoostHandler) HandleSummary(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	var req models.SummaryRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	summary, err := h.useCase.Summary(ctx, sess, req.PlanID)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, summary)
}

// HandleCheckout handles POST /api/boost/checkout
func (h *BoostHandler) HandleCheckout(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	var req models.CheckoutRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	result, err := h.useCase.Checkout(ctx, sess, req)
	if err != nil {
		return response.Error(err)
	}
	if result.Boost == nil {
		return response.Success(http.StatusAccepted, result)
	}
	return response.Success(http.StatusOK, result)
}

// HandleWebhook handles POST /api/boost/webhook. The signature covers the
// exact bytes received, so the body is never re-encoded.
func (h *BoostHandler) HandleWebhook(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	payload := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return response.Error(apperrors.InvalidInput("body", "Body is not valid base64"))
		}
		payload = decoded
	}
	if err := h.useCase.HandleWebhook(ctx, payload, middleware.Header(request, signatureHeader)); err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, map[string]bool{"received": true})
}
