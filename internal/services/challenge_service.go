package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/kdlacuna/kainan/internal/models"
)

// ChallengeRepository defines the interface for login challenge storage
type ChallengeRepository interface {
	Upsert(ctx context.Context, challenge *models.Challenge) error
	Consume(ctx context.Context, accountID, code string) (bool, error)
	Get(ctx context.Context, accountID string) (*models.Challenge, error)
	Delete(ctx context.Context, accountID string) error
}

// Notifier delivers the login code over a secondary channel.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// ChallengeService mints and verifies single-use login codes. Issuance and
// delivery are coupled: if the notifier fails within the bounded timeout,
// the stored challenge is rolled back so the caller never advances to
// "awaiting code" with no way to receive one.
type ChallengeService struct {
	repo           ChallengeRepository
	notifier       Notifier
	ttl            time.Duration
	resendCooldown time.Duration
	notifyTimeout  time.Duration
	logger         *slog.Logger
}

// NewChallengeService creates a new ChallengeService
func NewChallengeService(repo ChallengeRepository, notifier Notifier, ttl, resendCooldown, notifyTimeout time.Duration, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{
		repo:           repo,
		notifier:       notifier,
		ttl:            ttl,
		resendCooldown: resendCooldown,
		notifyTimeout:  notifyTimeout,
		logger:         logger,
	}
}

// generateCode returns 6 ASCII digits from a cryptographically strong
// source, leading zeros included.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate login code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue mints a code for the account, stores it as the sole live challenge
// (replacing any prior one) and delivers it. On delivery failure the
// challenge is rolled back and models.ErrDeliveryFailed is returned.
func (s *ChallengeService) Issue(ctx context.Context, accountID, email, name string) (*models.Challenge, error) {
	code, err := generateCode()
	if err != nil {
		s.logger.Error("failed to generate login code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	challenge := &models.Challenge{
		AccountID: accountID,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.repo.Upsert(ctx, challenge); err != nil {
		s.logger.Error("failed to store login challenge",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.deliver(ctx, email, name, challenge); err != nil {
		// Roll back so no unreceivable code stays live.
		if delErr := s.repo.Delete(ctx, accountID); delErr != nil {
			s.logger.Error("failed to roll back undelivered challenge",
				slog.String("account_id", accountID),
				slog.Any("error", delErr))
		}
		s.logger.Error("login code delivery failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return nil, models.ErrDeliveryFailed
	}

	s.logger.Info("login code issued",
		slog.String("account_id", accountID),
		slog.Time("expires_at", challenge.ExpiresAt))

	return challenge, nil
}

// Resend re-issues the account's code. Within the cooldown it is a silent
// no-op so the endpoint cannot be used to flood a mailbox; the caller
// surfaces the same generic "code sent" message either way.
func (s *ChallengeService) Resend(ctx context.Context, accountID, email, name string) error {
	existing, err := s.repo.Get(ctx, accountID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing challenge",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if existing != nil && time.Since(existing.IssuedAt) < s.resendCooldown {
		s.logger.Info("resend within cooldown, skipped",
			slog.String("account_id", accountID),
			slog.Duration("since_issue", time.Since(existing.IssuedAt)))
		return nil
	}

	_, err = s.Issue(ctx, accountID, email, name)
	return err
}

// Verify atomically tests and consumes the account's challenge. A wrong or
// expired code returns models.ErrChallengeInvalid and leaves any live
// challenge untouched.
func (s *ChallengeService) Verify(ctx context.Context, accountID, code string) error {
	consumed, err := s.repo.Consume(ctx, accountID, code)
	if err != nil {
		s.logger.Error("failed to verify login code",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !consumed {
		return models.ErrChallengeInvalid
	}
	return nil
}

// deliver sends the code under a request-scoped timeout. A slow notifier
// must not hold the login request indefinitely; a timeout counts as a
// delivery failure.
func (s *ChallengeService) deliver(ctx context.Context, email, name string, challenge *models.Challenge) error {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	minutes := int(s.ttl.Minutes())
	subject := "Your Kainan login code"

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hi %s,</p>
  <p>Your one-time login code is:</p>
  <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
  <p>The code expires in %d minutes and can be used once.</p>
  <p>If you did not try to sign in, you can ignore this email. Your password was entered correctly, so consider changing it.</p>
</body>
</html>`, name, challenge.Code, minutes)

	textBody := fmt.Sprintf(`Hi %s,

Your one-time login code is: %s

The code expires in %d minutes and can be used once.

If you did not try to sign in, you can ignore this email. Your password was entered correctly, so consider changing it.
`, name, challenge.Code, minutes)

	return s.notifier.Send(ctx, email, subject, htmlBody, textBody)
}
