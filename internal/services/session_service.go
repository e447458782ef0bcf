package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kdlacuna/kainan/internal/models"
)

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Replace(ctx context.Context, oldID string, elevated *models.Session) error
	Delete(ctx context.Context, id string) error
}

// SessionService creates pending-second-factor sessions and elevates them
// into authenticated ones. Elevation always regenerates the session
// identifier (anti-fixation).
type SessionService struct {
	repo       SessionRepository
	pendingTTL time.Duration
	authTTL    time.Duration
	logger     *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, pendingTTL, authTTL time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:       repo,
		pendingTTL: pendingTTL,
		authTTL:    authTTL,
		logger:     logger,
	}
}

// BeginPending creates a pending session for an account whose credentials
// passed and whose challenge was just issued. It expires with the
// challenge; no long-term authority attaches to it.
func (s *SessionService) BeginPending(ctx context.Context, account *models.Account, flow string) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
		Flow:      flow,
		State:     models.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),
	}

	if err := s.repo.Create(ctx, session); err != nil {
		s.logger.Error("failed to create pending session",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return session, nil
}

// GetPending returns the pending session by identifier.
// models.ErrNoPendingLogin means no session exists for the identifier
// (missing or expired); models.ErrSessionNotPending means a session exists
// but is already elevated.
func (s *SessionService) GetPending(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, models.ErrNoPendingLogin
	}

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoPendingLogin
		}
		s.logger.Error("failed to load session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if session.State != models.SessionPending {
		return nil, models.ErrSessionNotPending
	}
	return session, nil
}

// Elevate discards the pending session and creates an authenticated one
// under a freshly generated identifier, in one transaction.
func (s *SessionService) Elevate(ctx context.Context, pending *models.Session) (*models.Session, error) {
	now := time.Now()
	elevated := &models.Session{
		ID:        uuid.New().String(),
		AccountID: pending.AccountID,
		Email:     pending.Email,
		Name:      pending.Name,
		Role:      pending.Role,
		Flow:      pending.Flow,
		State:     models.SessionAuthenticated,
		CreatedAt: now,
		ExpiresAt: now.Add(s.authTTL),
		LoginAt:   &now,
	}

	if err := s.repo.Replace(ctx, pending.ID, elevated); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The pending session vanished under us: concurrent elevation
			// or expiry purge.
			return nil, models.ErrNoPendingLogin
		}
		s.logger.Error("failed to elevate session",
			slog.String("account_id", pending.AccountID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("session elevated",
		slog.String("account_id", elevated.AccountID),
		slog.String("role", elevated.Role))

	return elevated, nil
}

// Invalidate removes a session by identifier. Unknown identifiers are not
// an error; logout is idempotent.
func (s *SessionService) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to invalidate session", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// RedirectTarget maps a role to its post-login surface.
func RedirectTarget(role string) string {
	switch role {
	case models.RoleSuperAdmin:
		return "/superadmin"
	case models.RoleAdmin, models.RoleStaff:
		return "/admin"
	default:
		return "/"
	}
}
