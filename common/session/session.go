// Package session replaces browser-held auth state with an explicit
// server-side session: created on login, read on every request, refreshed
// tokens written back, and destroyed on logout.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/jwt"
	"github.com/event-admin-services/common/logger"
	"github.com/event-admin-services/common/permission"
	"github.com/event-admin-services/common/scheduler"
)

// ErrNotFound is returned by stores for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// User is the signed-in dashboard user
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Session is everything the dashboard used to keep in cookies and local storage
type Session struct {
	ID           string         `json:"id"`
	User         User           `json:"user"`
	Permissions  permission.Set `json:"permissions"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	Language     string         `json:"language"`
	LastPath     string         `json:"lastPath,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	ExpiresAt    time.Time      `json:"expiresAt"`
}

// Preferences are the UI settings that survive navigation
type Preferences struct {
	Language string `json:"language"`
	LastPath string `json:"lastPath"`
}

// Store persists sessions
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// CreateParams is what a successful login hands to the manager
type CreateParams struct {
	User         User
	Permissions  permission.Set
	AccessToken  string
	RefreshToken string
	Language     string
}

// Manager owns the session lifecycle
type Manager struct {
	store Store
	ttl   time.Duration
	clock scheduler.Clock
	log   *logger.Logger

	mu        sync.RWMutex
	onDestroy []func(ctx context.Context, sessionID string)
}

// NewManager creates a manager issuing sessions that live for ttl
func NewManager(store Store, ttl time.Duration, clock scheduler.Clock) *Manager {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		clock: clock,
		log:   logger.Default().With("component", "session"),
	}
}

// TTL returns the lifetime of new sessions
func (m *Manager) TTL() time.Duration { return m.ttl }

// OnDestroy registers a hook run after a session is destroyed (slice cleanup)
func (m *Manager) OnDestroy(fn func(ctx context.Context, sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDestroy = append(m.onDestroy, fn)
}

// Create stores a new session and returns it with its signed cookie value
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Session, string, error) {
	now := m.clock.Now()
	lang := p.Language
	if lang == "" {
		lang = "en"
	}
	s := &Session{
		ID:           uuid.NewString(),
		User:         p.User,
		Permissions:  p.Permissions,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		Language:     lang,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s, m.ttl); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to create session")
	}

	cookie, err := jwt.GenerateSessionToken(s.ID, s.User.ID, s.User.Email, s.User.Role, m.ttl)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to sign session")
	}

	m.log.Info("session created", "session_id", s.ID, "user_id", s.User.ID, "role", s.User.Role)
	return s, cookie, nil
}

// Resolve validates a session cookie and loads its session
func (m *Manager) Resolve(ctx context.Context, cookie string) (*Session, error) {
	if cookie == "" {
		return nil, apperrors.Unauthorized("Not signed in")
	}
	claims, err := jwt.ValidateSessionToken(cookie)
	if err != nil {
		return nil, apperrors.SessionExpired()
	}
	return m.Get(ctx, claims.SessionID)
}

// Get loads a live session
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.SessionExpired()
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to load session")
	}
	if !m.clock.Now().Before(s.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return nil, apperrors.SessionExpired()
	}
	return s, nil
}

// UpdateTokens stores a refreshed token pair
func (m *Manager) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) {
		s.AccessToken = accessToken
		if refreshToken != "" {
			s.RefreshToken = refreshToken
		}
	})
}

// UpdatePreferences stores language and last-visited path
func (m *Manager) UpdatePreferences(ctx context.Context, id string, p Preferences) (*Session, error) {
	return m.update(ctx, id, func(s *Session) {
		if p.Language != "" {
			s.Language = p.Language
		}
		if p.LastPath != "" {
			s.LastPath = p.LastPath
		}
	})
}

// UpdatePermissions replaces the cached role-permission snapshot
func (m *Manager) UpdatePermissions(ctx context.Context, id string, perms permission.Set) (*Session, error) {
	return m.update(ctx, id, func(s *Session) { s.Permissions = perms })
}

// Destroy deletes the session and runs the destroy hooks
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to delete session")
	}

	m.mu.RLock()
	hooks := append([]func(context.Context, string){}, m.onDestroy...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, id)
	}

	m.log.Info("session destroyed", "session_id", id)
	return nil
}

func (m *Manager) update(ctx context.Context, id string, mutate func(*Session)) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(s)
	ttl := s.ExpiresAt.Sub(m.clock.Now())
	if err := m.store.Save(ctx, s, ttl); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to save session")
	}
	return s, nil
}
