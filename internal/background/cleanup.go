package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/kdlacuna/kainan/internal/repositories"
)

// CleanupManager periodically purges expired attempt records, challenges
// and sessions. Lazy expiry on read governs correctness; this keeps the
// tables from growing without bound.
type CleanupManager struct {
	attemptRepo      *repositories.AttemptRepository
	challengeRepo    *repositories.ChallengeRepository
	sessionRepo      *repositories.SessionRepository
	attemptRetention time.Duration
	logger           *slog.Logger
	interval         time.Duration
	stopCh           chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attemptRepo *repositories.AttemptRepository,
	challengeRepo *repositories.ChallengeRepository,
	sessionRepo *repositories.SessionRepository,
	attemptRetention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attemptRepo:      attemptRepo,
		challengeRepo:    challengeRepo,
		sessionRepo:      sessionRepo,
		attemptRetention: attemptRetention,
		logger:           logger,
		interval:         interval,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attempts, err := cm.attemptRepo.DeleteStale(cleanupCtx, cm.attemptRetention)
	if err != nil {
		cm.logger.Error("failed to purge stale attempt records", slog.Any("error", err))
	}

	challenges, err := cm.challengeRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired challenges", slog.Any("error", err))
	}

	sessions, err := cm.sessionRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired sessions", slog.Any("error", err))
	}

	if attempts+challenges+sessions > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int64("attempt_records", attempts),
			slog.Int64("challenges", challenges),
			slog.Int64("sessions", sessions))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
