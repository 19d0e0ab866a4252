package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/auth"
	"github.com/spec-kit/triage-portal/internal/config"
	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/repository"
	apperrors "github.com/spec-kit/triage-portal/pkg/util/errorutil"
)

// RosterInvalidator is notified when a role change alters the staff pool.
type RosterInvalidator interface {
	Invalidate()
}

// Session is an issued bearer token with the user it belongs to.
type Session struct {
	User        *domain.User
	AccessToken string
	Token       domain.Token
}

// AuthService coordinates registration, login and role management.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	roster     RosterInvalidator
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Roster   RosterInvalidator
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	s := &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		roster:     deps.Roster,
		logger:     deps.Logger,
		bcryptCost: cfg.Auth.BcryptCost,
		now:        deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates a requester account and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"field": "email"})
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, apperrors.NewValidationError("password must be at least 8 characters", map[string]any{"field": "password"})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := s.now()
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		LastLoginAt:  &now,
		CreatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.MapError(err)
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("stamp last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return s.issue(user)
}

// Login authenticates a user and stamps the login time used for staff presence.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	user.LastLoginAt = &now
	return s.issue(user)
}

// ListUsers returns accounts, optionally limited to some roles.
func (s *AuthService) ListUsers(ctx context.Context, roles []domain.UserRole, limit, offset int) ([]domain.User, error) {
	users, err := s.users.List(ctx, repository.UserFilter{Roles: roles, Limit: limit, Offset: offset})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// UpdateRole changes a user's role. Only super admins may grant or revoke super_admin.
func (s *AuthService) UpdateRole(ctx context.Context, actor *domain.User, userID string, role domain.UserRole) (*domain.User, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	if (role == domain.RoleSuperAdmin || target.Role == domain.RoleSuperAdmin) && actor.Role != domain.RoleSuperAdmin {
		return nil, apperrors.NewForbidden("only super admins may change super admin roles")
	}
	if target.Role == role {
		return target, nil
	}

	now := s.now()
	if err := s.users.UpdateRole(ctx, userID, role, now); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("user role updated",
		zap.String("user_id", userID),
		zap.String("from", string(target.Role)),
		zap.String("to", string(role)),
		zap.String("actor_id", actor.ID))
	target.Role = role
	target.UpdatedAt = now

	if s.roster != nil {
		s.roster.Invalidate()
	}
	return target, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	signed, meta, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Session{User: user, AccessToken: signed, Token: meta}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
