package repository

import (
	"context"
	"net/url"

	"github.com/event-admin-services/common/backend"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/services/user-lambda/models"
)

// UserRepository talks to the backend user, role and notification API
type UserRepository struct {
	client *backend.Client
}

// NewUserRepository creates a new user repository
func NewUserRepository(client *backend.Client) *UserRepository {
	return &UserRepository{client: client}
}

// ListUsers returns every account
func (r *UserRepository) ListUsers(ctx context.Context, sess *session.Session) ([]models.User, error) {
	var users []models.User
	if err := r.client.Get(ctx, sess, "/users", nil, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// GetUser returns one account
func (r *UserRepository) GetUser(ctx context.Context, sess *session.Session, id string) (*models.User, error) {
	var u models.User
	if err := r.client.Get(ctx, sess, "/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser adds an account
func (r *UserRepository) CreateUser(ctx context.Context, sess *session.Session, req models.UserRequest) (*models.User, error) {
	var u models.User
	if err := r.client.Post(ctx, sess, "/users", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser edits an account
func (r *UserRepository) UpdateUser(ctx context.Context, sess *session.Session, id string, req models.UserRequest) (*models.User, error) {
	var u models.User
	if err := r.client.Put(ctx, sess, "/users/"+url.PathEscape(id), req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes an account
func (r *UserRepository) DeleteUser(ctx context.Context, sess *session.Session, id string) error {
	return r.client.Delete(ctx, sess, "/users/"+url.PathEscape(id))
}

// ListRoles returns every role with its permissions
func (r *UserRepository) ListRoles(ctx context.Context, sess *session.Session) ([]models.Role, error) {
	var roles []models.Role
	if err := r.client.Get(ctx, sess, "/roles", nil, &roles); err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []models.Role{}
	}
	return roles, nil
}

// RolePayload is what the backend receives for a role write
type RolePayload struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Permissions []models.BackendGrant `json:"permissions"`
}

// CreateRole adds a role
func (r *UserRepository) CreateRole(ctx context.Context, sess *session.Session, p RolePayload) (*models.Role, error) {
	var role models.Role
	if err := r.client.Post(ctx, sess, "/roles", p, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// UpdateRole replaces a role's name and permissions
func (r *UserRepository) UpdateRole(ctx context.Context, sess *session.Session, id string, p RolePayload) (*models.Role, error) {
	var role models.Role
	if err := r.client.Put(ctx, sess, "/roles/"+url.PathEscape(id), p, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// DeleteRole removes a role
func (r *UserRepository) DeleteRole(ctx context.Context, sess *session.Session, id string) error {
	return r.client.Delete(ctx, sess, "/roles/"+url.PathEscape(id))
}

// ListNotifications returns the signed-in user's inbox
func (r *UserRepository) ListNotifications(ctx context.Context, sess *session.Session) ([]models.Notification, error) {
	var items []models.Notification
	if err := r.client.Get(ctx, sess, "/notifications", nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// MarkNotificationRead flags one notification as read
func (r *UserRepository) MarkNotificationRead(ctx context.Context, sess *session.Session, id string) error {
	return r.client.Put(ctx, sess, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead clears the inbox badge
func (r *UserRepository) MarkAllNotificationsRead(ctx context.Context, sess *session.Session) error {
	return r.client.Put(ctx, sess, "/notifications/read-all", nil, nil)
}
