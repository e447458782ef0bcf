package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kdlacuna/kainan/internal/config"
	"github.com/kdlacuna/kainan/internal/models"
)

// AttemptRepository defines the interface for failed-login counter operations
type AttemptRepository interface {
	Increment(ctx context.Context, key models.AttemptKey, lockThreshold, timedLockThreshold int, lockoutSeconds, windowSeconds int64) (*models.AttemptRecord, error)
	Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	Delete(ctx context.Context, key models.AttemptKey) error
}

// LockoutService is the attempt ledger for one gate: it counts failures
// per key, decides lock state and clears records lazily once a lock has
// elapsed. The thresholds come from per-flow configuration.
//
// Ledger infrastructure errors never block a login: CheckLock and
// Remaining open-fail to "not locked" / "full budget" and log the error
// loudly so a true negative stays distinguishable in the logs.
type LockoutService struct {
	repo   AttemptRepository
	policy config.LockoutConfig
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo AttemptRepository, policy config.LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// RecordFailure increments the failure counter for a key. The lock columns
// are derived in the same atomic statement, so concurrent failures from the
// same key cannot lose increments or miss a threshold crossing. Failures
// only accumulate inside the rolling window; a failure landing after the
// window restarts the count.
func (s *LockoutService) RecordFailure(ctx context.Context, key models.AttemptKey) {
	record, err := s.repo.Increment(ctx, key,
		s.policy.LockThreshold,
		s.policy.TimedLockThreshold,
		int64(s.policy.LockoutDuration.Seconds()),
		int64(s.policy.Window.Seconds()),
	)
	if err != nil {
		s.logger.Error("attempt ledger unavailable, failure not recorded",
			slog.String("flow", key.Flow),
			slog.String("source_ip", key.SourceIP),
			slog.Any("error", err))
		return
	}

	if record.Locked {
		s.logger.Warn("login key locked",
			slog.String("flow", key.Flow),
			slog.String("source_ip", key.SourceIP),
			slog.Int("failure_count", record.FailureCount))
	}
}

// CheckLock reports the lock state for a key. A soft lock (no hard expiry)
// ends when the rolling window since the last failure passes; a timed lock
// ends at its expiry. Either way the record is deleted on the read that
// finds it elapsed (lazy expiry).
func (s *LockoutService) CheckLock(ctx context.Context, key models.AttemptKey) models.LockState {
	record, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("attempt ledger unavailable, treating key as unlocked",
				slog.String("flow", key.Flow),
				slog.String("source_ip", key.SourceIP),
				slog.Any("error", err))
		}
		return models.LockState{}
	}

	if !record.Locked {
		return models.LockState{}
	}

	until := record.LastFailureAt.Add(s.policy.Window)
	if record.LockedUntil != nil {
		until = *record.LockedUntil
	}

	remaining := time.Until(until)
	if remaining <= 0 {
		if err := s.repo.Delete(ctx, key); err != nil {
			s.logger.Error("failed to clear elapsed lock",
				slog.String("flow", key.Flow),
				slog.Any("error", err))
		}
		return models.LockState{}
	}

	return models.LockState{
		Locked:           true,
		RemainingSeconds: int(remaining.Seconds()) + 1,
	}
}

// Clear deletes the record for a key. Called on successful credential
// validation so a legitimate login resets the budget.
func (s *LockoutService) Clear(ctx context.Context, key models.AttemptKey) {
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Error("failed to clear attempt record",
			slog.String("flow", key.Flow),
			slog.Any("error", err))
	}
}

// Remaining returns the configured max attempts minus the current failure
// count, floored at zero.
func (s *LockoutService) Remaining(ctx context.Context, key models.AttemptKey) int {
	record, err := s.repo.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("attempt ledger unavailable, reporting full budget",
				slog.String("flow", key.Flow),
				slog.Any("error", err))
		}
		return s.policy.MaxAttempts
	}

	remaining := s.policy.MaxAttempts - record.FailureCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxAttempts exposes the configured budget for this gate.
func (s *LockoutService) MaxAttempts() int {
	return s.policy.MaxAttempts
}
