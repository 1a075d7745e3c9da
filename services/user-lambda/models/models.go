package models

import (
	"encoding/json"
	"time"

	"github.com/event-admin-services/common/audit"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/pagination"
	"github.com/event-admin-services/common/permission"
)

// Account statuses
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusLocked   = "LOCKED"
)

// ============================================================
// Users - dashboard accounts
// ============================================================

// User is a dashboard account
type User struct {
	ID        common.ID `json:"id"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	RoleID    common.ID `json:"roleId"`
	RoleName  string    `json:"roleName"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRequest creates or edits a user. Password is required on create
// and optional on edit.
type UserRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password,omitempty"`
	RoleID   string `json:"roleId"`
	Status   string `json:"status,omitempty"`
}

// ============================================================
// Roles - named permission sets
// ============================================================

// Role carries its normalized permissions
type Role struct {
	ID          common.ID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Permissions permission.Set `json:"permissions"`
	UserCount   int            `json:"userCount"`
}

// RoleRequest creates or edits a role. Permissions accepts any shape the
// role payload normalizer reads.
type RoleRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Permissions json.RawMessage `json:"permissions"`
}

// BackendGrant is the role permission shape the backend stores
type BackendGrant struct {
	FeatureName string              `json:"featureName"`
	Permissions []BackendPermission `json:"permissions"`
}

// BackendPermission is one action of a BackendGrant
type BackendPermission struct {
	PermissionName string `json:"permissionName"`
}

// ============================================================
// Notifications
// ============================================================

// Notification is one inbox item
type Notification struct {
	ID        common.ID `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Inbox is a page of notifications with the unread badge count
type Inbox struct {
	pagination.Result[Notification]
	Unread int `json:"unread"`
}

// ============================================================
// Security log
// ============================================================

// SecurityLog is a page of audit entries
type SecurityLog struct {
	Items []audit.Entry   `json:"items"`
	Page  pagination.Page `json:"pagination"`
}
