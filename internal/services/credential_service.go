package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kdlacuna/kainan/internal/models"
	pkgauth "github.com/kdlacuna/kainan/pkg/auth"
)

// AccountRepository defines the interface for account lookups
type AccountRepository interface {
	GetEligibleByEmail(ctx context.Context, email string, roles []string) (*models.Account, error)
}

// CredentialService checks a submitted password against the stored hash of
// an eligible account. It has no side effects; callers drive the ledger.
type CredentialService struct {
	repo   AccountRepository
	logger *slog.Logger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(repo AccountRepository, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		repo:   repo,
		logger: logger,
	}
}

// Validate returns the account when the password matches an eligible
// account, or one of models.ErrNoSuchAccount, models.ErrInvalidCredentials,
// models.ErrNotEligible. Storage errors come back wrapped and distinct
// from all three.
func (s *CredentialService) Validate(ctx context.Context, email, password string, allowedRoles []string, requireVerifiedEmail bool) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.repo.GetEligibleByEmail(ctx, email, allowedRoles)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoSuchAccount
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !account.IsActive() {
		return nil, models.ErrNotEligible
	}
	if requireVerifiedEmail && !account.EmailVerified {
		return nil, models.ErrNotEligible
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return account, nil
}
