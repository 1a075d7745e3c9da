package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/event-admin-services/common/audit"
	"github.com/event-admin-services/common/config"
	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
	common "github.com/event-admin-services/common/models"
	"github.com/event-admin-services/common/pagination"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/session"
	"github.com/event-admin-services/common/store"
	"github.com/event-admin-services/common/validator"
	"github.com/event-admin-services/services/user-lambda/models"
	"github.com/event-admin-services/services/user-lambda/repository"
)

const unreadOnly = "unread"

// Repository is the backend user, role and notification API
type Repository interface {
	ListUsers(ctx context.Context, sess *session.Session) ([]models.User, error)
	GetUser(ctx context.Context, sess *session.Session, id string) (*models.User, error)
	CreateUser(ctx context.Context, sess *session.Session, req models.UserRequest) (*models.User, error)
	UpdateUser(ctx context.Context, sess *session.Session, id string, req models.UserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, sess *session.Session, id string) error
	ListRoles(ctx context.Context, sess *session.Session) ([]models.Role, error)
	CreateRole(ctx context.Context, sess *session.Session, p repository.RolePayload) (*models.Role, error)
	UpdateRole(ctx context.Context, sess *session.Session, id string, p repository.RolePayload) (*models.Role, error)
	DeleteRole(ctx context.Context, sess *session.Session, id string) error
	ListNotifications(ctx context.Context, sess *session.Session) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, sess *session.Session, id string) error
	MarkAllNotificationsRead(ctx context.Context, sess *session.Session) error
}

// PermissionUpdater refreshes the permission snapshot of a live session
type PermissionUpdater interface {
	UpdatePermissions(ctx context.Context, id string, perms permission.Set) (*session.Session, error)
}

// UserUseCase handles users, roles, notifications, the security log and
// system settings.
type UserUseCase struct {
	repo     Repository
	store    *store.Store
	audit    audit.Store
	sessions PermissionUpdater
	log      *logger.Logger
}

// NewUserUseCase creates a new user use case
func NewUserUseCase(repo Repository, st *store.Store, auditStore audit.Store, sessions PermissionUpdater) *UserUseCase {
	return &UserUseCase{
		repo:     repo,
		store:    st,
		audit:    auditStore,
		sessions: sessions,
		log:      logger.Default().With("component", "users"),
	}
}

// ============================================================
// Users
// ============================================================

func (uc *UserUseCase) loadUsers(ctx context.Context, sess *session.Session) ([]models.User, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Users, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListUsers(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.User), nil
}

// ListUsers returns one page of users sorted by name
func (uc *UserUseCase) ListUsers(ctx context.Context, sess *session.Session, q common.ListQuery) (pagination.Result[models.User], error) {
	all, err := uc.loadUsers(ctx, sess)
	if err != nil {
		return pagination.Result[models.User]{}, err
	}
	rows := common.Filter(all, func(u models.User) bool {
		return q.MatchesStatus(u.Status) && q.Matches(u.FullName, u.Email, u.Phone, u.RoleName)
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].FullName) < strings.ToLower(rows[j].FullName)
	})
	return pagination.Of(rows, q.PageSize, q.Page), nil
}

// GetUser returns one user
func (uc *UserUseCase) GetUser(ctx context.Context, sess *session.Session, id string) (*models.User, error) {
	return uc.repo.GetUser(ctx, sess, id)
}

// CreateUser validates and adds a user
func (uc *UserUseCase) CreateUser(ctx context.Context, sess *session.Session, req models.UserRequest) (*models.User, error) {
	req, err := validateUser(req, true)
	if err != nil {
		return nil, err
	}
	u, err := uc.repo.CreateUser(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	uc.log.Info("user created", "userId", u.ID.String(), "by", sess.User.ID)
	uc.refresh(ctx, sess, store.Users)
	return u, nil
}

// UpdateUser validates and edits a user
func (uc *UserUseCase) UpdateUser(ctx context.Context, sess *session.Session, id string, req models.UserRequest) (*models.User, error) {
	req, err := validateUser(req, false)
	if err != nil {
		return nil, err
	}
	if id == sess.User.ID && req.Status != "" && req.Status != models.StatusActive {
		return nil, apperrors.BusinessError("You cannot deactivate your own account")
	}
	u, err := uc.repo.UpdateUser(ctx, sess, id, req)
	if err != nil {
		return nil, err
	}
	uc.log.Info("user updated", "userId", id, "by", sess.User.ID)
	uc.refresh(ctx, sess, store.Users)
	return u, nil
}

// DeleteUser removes a user other than the caller
func (uc *UserUseCase) DeleteUser(ctx context.Context, sess *session.Session, id string) error {
	if id == sess.User.ID {
		return apperrors.BusinessError("You cannot delete your own account")
	}
	if err := uc.repo.DeleteUser(ctx, sess, id); err != nil {
		return err
	}
	uc.log.Info("user deleted", "userId", id, "by", sess.User.ID)
	uc.refresh(ctx, sess, store.Users)
	return nil
}

func validateUser(req models.UserRequest, creating bool) (models.UserRequest, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = validator.NormalizeEmail(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.RoleID = strings.TrimSpace(req.RoleID)
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))

	errs := apperrors.FieldErrors{}
	errs.Add("fullName", validator.GetFullNameError(req.FullName))
	errs.Add("email", validator.GetEmailError(req.Email))
	if req.Phone != "" {
		errs.Add("phone", validator.GetPhoneError(req.Phone))
	}
	if creating || req.Password != "" {
		errs.Add("password", validator.GetPasswordError(req.Password))
	}
	if req.RoleID == "" {
		errs.Add("roleId", "Role is required")
	}
	switch req.Status {
	case "":
		if creating {
			req.Status = models.StatusActive
		}
	case models.StatusActive, models.StatusInactive, models.StatusLocked:
	default:
		errs.Add("status", "Status must be ACTIVE, INACTIVE or LOCKED")
	}
	return req, errs.Err()
}

// ============================================================
// Roles
// ============================================================

// ListRoles returns every role sorted by name
func (uc *UserUseCase) ListRoles(ctx context.Context, sess *session.Session) ([]models.Role, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Roles, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListRoles(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	roles := append([]models.Role(nil), v.([]models.Role)...)
	sort.SliceStable(roles, func(i, j int) bool { return strings.ToLower(roles[i].Name) < strings.ToLower(roles[j].Name) })
	return roles, nil
}

// Features is the catalog the role editor offers
func (uc *UserUseCase) Features() []permission.Grant {
	return permission.Catalog
}

// CreateRole validates and adds a role
func (uc *UserUseCase) CreateRole(ctx context.Context, sess *session.Session, req models.RoleRequest) (*models.Role, error) {
	payload, err := rolePayload(req)
	if err != nil {
		return nil, err
	}
	role, err := uc.repo.CreateRole(ctx, sess, payload)
	if err != nil {
		return nil, err
	}
	uc.log.Info("role created", "role", payload.Name, "by", sess.User.ID)
	uc.refresh(ctx, sess, store.Roles)
	return role, nil
}

// UpdateRole replaces a role. When the caller holds that role, the session's
// permissions are replaced too so the dashboard reflects the change at once.
func (uc *UserUseCase) UpdateRole(ctx context.Context, sess *session.Session, id string, req models.RoleRequest) (*models.Role, error) {
	payload, err := rolePayload(req)
	if err != nil {
		return nil, err
	}
	role, err := uc.repo.UpdateRole(ctx, sess, id, payload)
	if err != nil {
		return nil, err
	}
	uc.log.Info("role updated", "roleId", id, "by", sess.User.ID)
	uc.refresh(ctx, sess, store.Roles)

	if uc.sessions != nil && strings.EqualFold(sess.User.Role, role.Name) {
		perms := role.Permissions
		if perms.Empty() {
			perms = permission.FromGrants(grantsOf(payload))
		}
		if _, err := uc.sessions.UpdatePermissions(ctx, sess.ID, perms); err != nil {
			uc.log.WithError(err).Warn("failed to refresh session permissions")
		}
	}
	return role, nil
}

// DeleteRole removes a role
func (uc *UserUseCase) DeleteRole(ctx context.Context, sess *session.Session, id string) error {
	if err := uc.repo.DeleteRole(ctx, sess, id); err != nil {
		return err
	}
	uc.log.Info("role deleted", "roleId", id, "by", sess.User.ID)
	uc.refresh(ctx, sess, store.Roles)
	return nil
}

// rolePayload normalizes the editor's permissions and rejects pairs the
// dashboard does not know.
func rolePayload(req models.RoleRequest) (repository.RolePayload, error) {
	errs := apperrors.FieldErrors{}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		errs.Add("name", "Role name is required")
	case len([]rune(name)) > 50:
		errs.Add("name", "Role name must be at most 50 characters")
	}

	set := permission.Normalize(req.Permissions)
	payload := repository.RolePayload{Name: name, Description: strings.TrimSpace(req.Description), Permissions: []models.BackendGrant{}}
	for _, g := range set.Grants() {
		bg := models.BackendGrant{FeatureName: g.Feature}
		for _, p := range g.Permissions {
			if !permission.InCatalog(g.Feature, p) {
				errs.Add("permissions", "Unknown permission "+g.Feature+"."+p)
				continue
			}
			bg.Permissions = append(bg.Permissions, models.BackendPermission{PermissionName: p})
		}
		if len(bg.Permissions) > 0 {
			payload.Permissions = append(payload.Permissions, bg)
		}
	}
	if len(payload.Permissions) == 0 {
		errs.Add("permissions", "Select at least one permission")
	}
	return payload, errs.Err()
}

func grantsOf(p repository.RolePayload) []permission.Grant {
	out := make([]permission.Grant, 0, len(p.Permissions))
	for _, g := range p.Permissions {
		perms := make([]string, 0, len(g.Permissions))
		for _, bp := range g.Permissions {
			perms = append(perms, bp.PermissionName)
		}
		out = append(out, permission.Grant{Feature: g.FeatureName, Permissions: perms})
	}
	return out
}

// ============================================================
// Notifications
// ============================================================

func (uc *UserUseCase) loadNotifications(ctx context.Context, sess *session.Session) ([]models.Notification, error) {
	v, err := uc.store.Dispatch(ctx, sess.ID, store.Notifications, func(ctx context.Context) (interface{}, error) {
		return uc.repo.ListNotifications(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Notification), nil
}

// Inbox returns one page of notifications, newest first, with the unread
// count. status=unread hides read items.
func (uc *UserUseCase) Inbox(ctx context.Context, sess *session.Session, q common.ListQuery) (*models.Inbox, error) {
	all, err := uc.loadNotifications(ctx, sess)
	if err != nil {
		return nil, err
	}
	unread := 0
	for _, n := range all {
		if !n.Read {
			unread++
		}
	}
	rows := common.Filter(all, func(n models.Notification) bool {
		if strings.EqualFold(q.Status, unreadOnly) && n.Read {
			return false
		}
		return q.Matches(n.Title, n.Message)
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return &models.Inbox{Result: pagination.Of(rows, q.PageSize, q.Page), Unread: unread}, nil
}

// MarkRead flags one notification
func (uc *UserUseCase) MarkRead(ctx context.Context, sess *session.Session, id string) error {
	if err := uc.repo.MarkNotificationRead(ctx, sess, id); err != nil {
		return err
	}
	uc.refresh(ctx, sess, store.Notifications)
	return nil
}

// MarkAllRead flags every notification
func (uc *UserUseCase) MarkAllRead(ctx context.Context, sess *session.Session) error {
	if err := uc.repo.MarkAllNotificationsRead(ctx, sess); err != nil {
		return err
	}
	uc.refresh(ctx, sess, store.Notifications)
	return nil
}

// ============================================================
// Security log and settings
// ============================================================

// SecurityLog returns one page of audit entries, newest first
func (uc *UserUseCase) SecurityLog(ctx context.Context, kind, event string, page, pageSize int) (*models.SecurityLog, error) {
	p := pagination.Paginate(0, pageSize, 1)
	f := audit.Filter{Kind: kind, Event: event, Limit: p.PageSize, Offset: (max(page, 1) - 1) * p.PageSize}
	entries, total, err := uc.audit.List(ctx, f)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	p = pagination.Paginate(total, pageSize, page)
	if p.Offset() != f.Offset {
		// requested page was past the end
		f.Offset = p.Offset()
		if entries, total, err = uc.audit.List(ctx, f); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		p = pagination.Paginate(total, pageSize, p.Page)
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return &models.SecurityLog{Items: entries, Page: p}, nil
}

// Settings returns the verification and table policy
func (uc *UserUseCase) Settings() *config.SystemConfig {
	return config.GetConfig()
}

// UpdateSettings validates and saves the policy. Gate timings take effect
// on the next start; the page size applies immediately.
func (uc *UserUseCase) UpdateSettings(sess *session.Session, cfg config.SystemConfig) (*config.SystemConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	if err := config.SaveConfig(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to save settings")
	}
	uc.log.Info("system settings updated", "by", sess.User.ID, "maxAttempts", cfg.MaxAttempts, "blockMinutes", cfg.BlockMinutes)
	return &cfg, nil
}

func (uc *UserUseCase) refresh(ctx context.Context, sess *session.Session, name store.SliceName) {
	var err error
	switch name {
	case store.Users:
		_, err = uc.loadUsers(ctx, sess)
	case store.Roles:
		_, err = uc.ListRoles(ctx, sess)
	case store.Notifications:
		_, err = uc.loadNotifications(ctx, sess)
	}
	if err != nil {
		uc.log.WithError(err).Warn("slice refresh failed", "slice", string(name))
	}
}
