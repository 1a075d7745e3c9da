package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/event-admin-services/common/bootstrap"
	"github.com/event-admin-services/common/config"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/middleware"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/event-lambda/models"
	"github.com/event-admin-services/services/event-lambda/repository"
	"github.com/event-admin-services/services/event-lambda/usecase"
)

// EventHandler handles event, category and location requests
type EventHandler struct {
	useCase *usecase.EventUseCase
}

// NewEventHandler creates a new event handler
func NewEventHandler(uc *usecase.EventUseCase) *EventHandler {
	return &EventHandler{useCase: uc}
}

// New wires the event handler onto a shared runtime
func New(app *bootstrap.App) *EventHandler {
	repo := repository.NewEventRepository(app.Backend)
	return NewEventHandler(usecase.NewEventUseCase(repo, app.Store, app.Geocoder, app.Clock))
}

// Routes lists the event endpoints. Static paths come before {id}.
func (h *EventHandler) Routes() []middleware.Route {
	ev, cat := permission.FeatureEvents, permission.FeatureCategories
	return []middleware.Route{
		{Method: http.MethodGet, Path: "/api/events", Handler: h.HandleListEvents, Feature: ev, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/events/calendar", Handler: h.HandleCalendar, Feature: ev, Permission: permission.View},
		{Method: http.MethodGet, Path: "/api/events/locations", Handler: h.HandleLocations, Feature: ev, Permission: permission.View},
		{Method: http.MethodPost, Path: "/api/events", Handler: h.HandleCreateEvent, Feature: ev, Permission: permission.Create},
		{Method: http.MethodGet, Path: "/api/events/{id}", Handler: h.HandleGetEvent, Feature: ev, Permission: permission.View},
		{Method: http.MethodPut, Path: "/api/events/{id}", Handler: h.HandleUpdateEvent, Feature: ev, Permission: permission.Update},
		{Method: http.MethodDelete, Path: "/api/events/{id}", Handler: h.HandleDeleteEvent, Feature: ev, Permission: permission.Delete},
		{Method: http.MethodGet, Path: "/api/categories", Handler: h.HandleListCategories, Feature: cat, Permission: permission.View},
		{Method: http.MethodPost, Path: "/api/categories", Handler: h.HandleCreateCategory, Feature: cat, Permission: permission.Create},
		{Method: http.MethodPut, Path: "/api/categories/{id}", Handler: h.HandleUpdateCategory, Feature: cat, Permission: permission.Update},
		{Method: http.MethodDelete, Path: "/api/categories/{id}", Handler: h.HandleDeleteCategory, Feature: cat, Permission: permission.Delete},
	}
}

// HandleListEvents handles GET /api/events?search=&status=&page=&pageSize=
func (h *EventHandler) HandleListEvents(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	q := common.ParseListQuery(request.QueryStringParameters, config.GetConfig().DefaultPageSize)
	result, err := h.useCase.ListEvents(ctx, sess, q)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, result)
}

// HandleGetEvent handles GET /api/events/{id}
func (h *EventHandler) HandleGetEvent(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	event, err := h.useCase.GetEvent(ctx, sess, id)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, event)
}

// HandleCalendar handles GET /api/events/calendar?month=2026-05&tz=Asia/Ho_Chi_Minh
func (h *EventHandler) HandleCalendar(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	loc, err := location(request)
	if err != nil {
		return response.Error(err)
	}
	cal, err := h.useCase.Calendar(ctx, sess, request.QueryStringParameters["month"], loc)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, cal)
}

// HandleLocations handles GET /api/events/locations?q=
func (h *EventHandler) HandleLocations(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	places, err := h.useCase.SuggestLocations(ctx, request.QueryStringParameters["q"])
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, places)
}

// HandleCreateEvent handles POST /api/events (multipart/form-data)
func (h *EventHandler) HandleCreateEvent(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	form, err := h.parseForm(request)
	if err != nil {
		return response.Error(err)
	}
	event, err := h.useCase.CreateEvent(ctx, sess, form)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusCreated, event)
}

// HandleUpdateEvent handles PUT /api/events/{id} (multipart/form-data)
func (h *EventHandler) HandleUpdateEvent(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	form, err := h.parseForm(request)
	if err != nil {
		return response.Error(err)
	}
	event, err := h.useCase.UpdateEvent(ctx, sess, id, form)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, event)
}

// HandleDeleteEvent handles DELETE /api/events/{id}
func (h *EventHandler) HandleDeleteEvent(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	if err := h.useCase.DeleteEvent(ctx, sess, id); err != nil {
		return response.Error(err)
	}
	return response.Message("Event deleted")
}

// HandleListCategories handles GET /api/categories
func (h *EventHandler) HandleListCategories(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	categories, err := h.useCase.ListCategories(ctx, sess)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, categories)
}

// HandleCreateCategory handles POST /api/categories
func (h *EventHandler) HandleCreateCategory(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	var req models.CategoryRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	c, err := h.useCase.CreateCategory(ctx, sess, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusCreated, c)
}

// HandleUpdateCategory handles PUT /api/categories/{id}
func (h *EventHandler) HandleUpdateCategory(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	var req models.CategoryRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	c, err := h.useCase.UpdateCategory(ctx, sess, id, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, c)
}

// HandleDeleteCategory handles DELETE /api/categories/{id}
func (h *EventHandler) HandleDeleteCategory(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	if err := h.useCase.DeleteCategory(ctx, sess, id); err != nil {
		return response.Error(err)
	}
	return response.Message("Category deleted")
}

func (h *EventHandler) parseForm(request events.APIGatewayProxyRequest) (models.EventForm, error) {
	loc, err := location(request)
	if err != nil {
		return models.EventForm{}, err
	}
	return ParseEventForm(request, h.useCase.Now(), loc)
}

// location reads the browser time zone from ?tz= or X-Timezone, UTC by default
func location(request events.APIGatewayProxyRequest) (*time.Location, error) {
	tz := request.QueryStringParameters["tz"]
	if tz == "" {
		tz = middleware.Header(request, "X-Timezone")
	}
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, apperrors.InvalidInput("tz", "Unknown time zone")
	}
	return loc, nil
}
