package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/event-admin-services/common/bootstrap"
	"github.com/event-admin-services/common/config"
	"github.com/event-admin-services/common/middleware"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/response"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/user-lambda/models"
	"github.com/event-admin-services/services/user-lambda/repository"
	"github.com/event-admin-services/services/user-lambda/usecase"
)

// UserHandler handles users, roles, notifications, the security log and settings
type UserHandler struct {
	useCase *usecase.UserUseCase
}

// NewUserHandler creates a new user handler
func NewUserHandler(uc *usecase.UserUseCase) *UserHandler {
	return &UserHandler{useCase: uc}
}

// New wires the user handler onto a shared runtime
func New(app *bootstrap.App) *UserHandler {
	repo := repository.NewUserRepository(app.Backend)
	return NewUserHandler(usecase.NewUserUseCase(repo, app.Store, app.Audit, app.Sessions))
}

func route(method, path string, h middleware.Handler, feature, perm string) middleware.Route {
	return middleware.Route{Method: method, Path: path, Handler: h, Feature: feature, Permission: perm}
}

// Routes lists the user endpoints
func (h *UserHandler) Routes() []middleware.Route {
	users, roles, inbox := permission.FeatureUsers, permission.FeatureRoles, permission.FeatureNotifications
	return []middleware.Route{
		route(http.MethodGet, "/api/users", h.HandleListUsers, users, permission.View),
		route(http.MethodPost, "/api/users", h.HandleCreateUser, users, permission.Create),
		route(http.MethodGet, "/api/users/{id}", h.HandleGetUser, users, permission.View),
		route(http.MethodPut, "/api/users/{id}", h.HandleUpdateUser, users, permission.Update),
		route(http.MethodDelete, "/api/users/{id}", h.HandleDeleteUser, users, permission.Delete),

		route(http.MethodGet, "/api/roles", h.HandleListRoles, roles, permission.View),
		route(http.MethodGet, "/api/roles/features", h.HandleFeatures, roles, permission.View),
		route(http.MethodPost, "/api/roles", h.HandleCreateRole, roles, permission.Create),
		route(http.MethodPut, "/api/roles/{id}", h.HandleUpdateRole, roles, permission.Update),
		route(http.MethodDelete, "/api/roles/{id}", h.HandleDeleteRole, roles, permission.Delete),

		route(http.MethodGet, "/api/notifications", h.HandleInbox, inbox, permission.View),
		route(http.MethodPut, "/api/notifications/read-all", h.HandleMarkAllRead, inbox, permission.Update),
		route(http.MethodPut, "/api/notifications/{id}/read", h.HandleMarkRead, inbox, permission.Update),

		route(http.MethodGet, "/api/security/log", h.HandleSecurityLog, permission.FeatureSecurity, permission.View),
		route(http.MethodGet, "/api/settings", h.HandleGetSettings, permission.FeatureSettings, permission.View),
		route(http.MethodPut, "/api/settings", h.HandleUpdateSettings, permission.FeatureSettings, permission.Update),
	}
}

func listQuery(request events.APIGatewayProxyRequest) common.ListQuery {
	return common.ParseListQuery(request.QueryStringParameters, config.GetConfig().DefaultPageSize)
}

// HandleListUsers handles GET /api/users
func (h *UserHandler) HandleListUsers(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	result, err := h.useCase.ListUsers(ctx, sess, listQuery(request))
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, result)
}

// HandleGetUser handles GET /api/users/{id}
func (h *UserHandler) HandleGetUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	u, err := h.useCase.GetUser(ctx, sess, id)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, u)
}

// HandleCreateUser handles POST /api/users
func (h *UserHandler) HandleCreateUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	var req models.UserRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	u, err := h.useCase.CreateUser(ctx, sess, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusCreated, u)
}

// HandleUpdateUser handles PUT /api/users/{id}
func (h *UserHandler) HandleUpdateUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	var req models.UserRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	u, err := h.useCase.UpdateUser(ctx, sess, id, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, u)
}

// HandleDeleteUser handles DELETE /api/users/{id}
func (h *UserHandler) HandleDeleteUser(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	if err := h.useCase.DeleteUser(ctx, sess, id); err != nil {
		return response.Error(err)
	}
	return response.Message("User deleted")
}

// HandleListRoles handles GET /api/roles
func (h *UserHandler) HandleListRoles(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	roles, err := h.useCase.ListRoles(ctx, sess)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, roles)
}

// HandleFeatures handles GET /api/roles/features
func (h *UserHandler) HandleFeatures(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return response.Success(http.StatusOK, h.useCase.Features())
}

// HandleCreateRole handles POST /api/roles
func (h *UserHandler) HandleCreateRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	var req models.RoleRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	role, err := h.useCase.CreateRole(ctx, sess, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusCreated, role)
}

// HandleUpdateRole handles PUT /api/roles/{id}
func (h *UserHandler) HandleUpdateRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	var req models.RoleRequest
	if err := middleware.BindJSON(request, &req); err != nil {
		return response.Error(err)
	}
	role, err := h.useCase.UpdateRole(ctx, sess, id, req)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, role)
}

// HandleDeleteRole handles DELETE /api/roles/{id}
func (h *UserHandler) HandleDeleteRole(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	if err := h.useCase.DeleteRole(ctx, sess, id); err != nil {
		return response.Error(err)
	}
	return response.Message("Role deleted")
}

// HandleInbox handles GET /api/notifications?status=unread
func (h *UserHandler) HandleInbox(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	inbox, err := h.useCase.Inbox(ctx, sess, listQuery(request))
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, inbox)
}

// HandleMarkRead handles PUT /api/notifications/{id}/read
func (h *UserHandler) HandleMarkRead(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	id, err := middleware.PathParam(request, "id")
	if err != nil {
		return response.Error(err)
	}
	if err := h.useCase.MarkRead(ctx, sess, id); err != nil {
		return response.Error(err)
	}
	return response.Message("Notification marked as read")
}

// HandleMarkAllRead handles PUT /api/notifications/read-all
func (h *UserHandler) HandleMarkAllRead(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	if err := h.useCase.MarkAllRead(ctx, sess); err != nil {
		return response.Error(err)
	}
	return response.Message("All notifications marked as read")
}

// HandleSecurityLog handles GET /api/security/log?kind=&event=&page=&pageSize=
func (h *UserHandler) HandleSecurityLog(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	params := request.QueryStringParameters
	q := listQuery(request)
	log, err := h.useCase.SecurityLog(ctx, params["kind"], params["event"], q.Page, q.PageSize)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, log)
}

// HandleGetSettings handles GET /api/settings
func (h *UserHandler) HandleGetSettings(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return response.Success(http.StatusOK, h.useCase.Settings())
}

// HandleUpdateSettings handles PUT /api/settings
func (h *UserHandler) HandleUpdateSettings(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, _ := session.FromContext(ctx)
	cfg := *h.useCase.Settings()
	if err := middleware.BindJSON(request, &cfg); err != nil {
		return response.Error(err)
	}
	saved, err := h.useCase.UpdateSettings(sess, cfg)
	if err != nil {
		return response.Error(err)
	}
	return response.Success(http.StatusOK, saved)
}
