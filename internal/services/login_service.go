package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kdlacuna/kainan/internal/auth"
	"github.com/kdlacuna/kainan/internal/models"
	pkglogger "github.com/kdlacuna/kainan/pkg/logger"
)

// Login states as surfaced to callers.
const (
	StateAwaitingCredentials = "awaiting_credentials"
	StateAwaitingChallenge   = "awaiting_challenge"
	StateAuthenticated       = "authenticated"
	StateLocked              = "locked"
)

// FlowConfig describes one login entry point. The staff and student flows
// share all machinery but differ in allowed roles, eligibility rules and
// lockout thresholds; the latter are deliberately independent knobs.
type FlowConfig struct {
	Name                 string // "staff" or "student"
	AllowedRoles         []string
	RequireVerifiedEmail bool
}

// LoginStep is the outcome of one state-machine transition.
type LoginStep struct {
	State             string `json:"state"`
	SessionID         string `json:"-"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RemainingSeconds  int    `json:"retry_after_seconds,omitempty"`
	RedirectTo        string `json:"redirect_to,omitempty"`
}

// LoginService is the orchestrator for one flow: it composes the lockout
// gates, the credential validator, the challenge issuer/verifier and the
// session elevator into the two-step login state machine.
//
// Failed second-factor submissions debit the same (source, account) key as
// failed passwords: one budget per account per source.
type LoginService struct {
	flow           FlowConfig
	credentials    *CredentialService
	accountLockout *LockoutService
	ipLockout      *LockoutService // nil when the flow has no IP-wide gate
	challenges     *ChallengeService
	sessions       *SessionService
	timing         *auth.TimingDelay
	logger         *slog.Logger
	audit          *pkglogger.AuditLogger
}

// NewLoginService creates a LoginService for one flow.
func NewLoginService(
	flow FlowConfig,
	credentials *CredentialService,
	accountLockout *LockoutService,
	ipLockout *LockoutService,
	challenges *ChallengeService,
	sessions *SessionService,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *LoginService {
	return &LoginService{
		flow:           flow,
		credentials:    credentials,
		accountLockout: accountLockout,
		ipLockout:      ipLockout,
		challenges:     challenges,
		sessions:       sessions,
		timing:         timing,
		logger:         logger,
		audit:          audit,
	}
}

func (s *LoginService) accountKey(ip, email string) models.AttemptKey {
	return models.AttemptKey{Flow: s.flow.Name, SourceIP: ip, Identifier: email}
}

func (s *LoginService) ipKey(ip string) models.AttemptKey {
	return models.AttemptKey{Flow: s.flow.Name, SourceIP: ip}
}

// checkGates consults the IP-wide gate (when configured) and the account
// gate. Returns a locked step when either holds.
func (s *LoginService) checkGates(ctx context.Context, ip, email string) *LoginStep {
	if s.ipLockout != nil {
		if state := s.ipLockout.CheckLock(ctx, s.ipKey(ip)); state.Locked {
			return &LoginStep{State: StateLocked, RemainingSeconds: state.RemainingSeconds}
		}
	}
	if state := s.accountLockout.CheckLock(ctx, s.accountKey(ip, email)); state.Locked {
		return &LoginStep{State: StateLocked, RemainingSeconds: state.RemainingSeconds}
	}
	return nil
}

// recordFailure debits every gate this flow runs.
func (s *LoginService) recordFailure(ctx context.Context, ip, email string) {
	s.accountLockout.RecordFailure(ctx, s.accountKey(ip, email))
	if s.ipLockout != nil {
		s.ipLockout.RecordFailure(ctx, s.ipKey(ip))
	}
}

// remainingAttempts reports the account budget left, but only when it is
// below max and above zero (the response field is omitted otherwise).
func (s *LoginService) remainingAttempts(ctx context.Context, ip, email string) *int {
	remaining := s.accountLockout.Remaining(ctx, s.accountKey(ip, email))
	if remaining > 0 && remaining < s.accountLockout.MaxAttempts() {
		return &remaining
	}
	return nil
}

// SubmitCredentials runs the AwaitingCredentials transition: lock gates,
// credential check, ledger update, challenge issuance.
func (s *LoginService) SubmitCredentials(ctx context.Context, email, password, ip, userAgent string) (*LoginStep, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if step := s.checkGates(ctx, ip, email); step != nil {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_rejected",
			Flow:          s.flow.Name,
			IPAddress:     ip,
			FailureReason: "locked",
			Success:       false,
		})
		return step, &models.LockedError{RemainingSeconds: step.RemainingSeconds}
	}

	start := time.Now()
	account, err := s.credentials.Validate(ctx, email, password, s.flow.AllowedRoles, s.flow.RequireVerifiedEmail)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoSuchAccount),
			errors.Is(err, models.ErrInvalidCredentials),
			errors.Is(err, models.ErrNotEligible):
			s.recordFailure(ctx, ip, email)
			s.timing.WaitFrom(start, false)

			s.logger.Info("login failed: invalid credentials",
				slog.String("flow", s.flow.Name),
				slog.String("email", pkglogger.SanitizedEmail(email)))
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				Flow:          s.flow.Name,
				IPAddress:     ip,
				UserAgent:     userAgent,
				FailureReason: failureReason(err),
				Success:       false,
			})

			// The failure just recorded may have crossed a threshold.
			if step := s.checkGates(ctx, ip, email); step != nil {
				return step, &models.LockedError{RemainingSeconds: step.RemainingSeconds}
			}

			return &LoginStep{
				State:             StateAwaitingCredentials,
				RemainingAttempts: s.remainingAttempts(ctx, ip, email),
			}, models.ErrInvalidCredentials
		default:
			// Infrastructure failure: fail closed, no ledger debit.
			return nil, models.ErrInternalServer
		}
	}

	s.timing.WaitFrom(start, true)
	s.accountLockout.Clear(ctx, s.accountKey(ip, email))

	if _, err := s.challenges.Issue(ctx, account.ID, account.Email, account.Name); err != nil {
		if errors.Is(err, models.ErrDeliveryFailed) {
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "challenge_delivery_failed",
				Flow:          s.flow.Name,
				AccountID:     account.ID,
				IPAddress:     ip,
				FailureReason: "delivery_failed",
				Success:       false,
			})
			return &LoginStep{State: StateAwaitingCredentials}, models.ErrDeliveryFailed
		}
		return nil, models.ErrInternalServer
	}

	pending, err := s.sessions.BeginPending(ctx, account, s.flow.Name)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "challenge_issued",
		Flow:      s.flow.Name,
		AccountID: account.ID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})

	return &LoginStep{State: StateAwaitingChallenge, SessionID: pending.ID}, nil
}

// SubmitCode runs the AwaitingChallenge transition: verify the code,
// elevate the session on success, debit the ledger on failure.
func (s *LoginService) SubmitCode(ctx context.Context, sessionID, code, ip string) (*LoginStep, error) {
	pending, err := s.sessions.GetPending(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if step := s.checkGates(ctx, ip, pending.Email); step != nil {
		return step, &models.LockedError{RemainingSeconds: step.RemainingSeconds}
	}

	if err := s.challenges.Verify(ctx, pending.AccountID, code); err != nil {
		if errors.Is(err, models.ErrChallengeInvalid) {
			s.recordFailure(ctx, ip, pending.Email)

			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "challenge_failed",
				Flow:          s.flow.Name,
				AccountID:     pending.AccountID,
				IPAddress:     ip,
				FailureReason: "invalid_code",
				Success:       false,
			})

			if step := s.checkGates(ctx, ip, pending.Email); step != nil {
				return step, &models.LockedError{RemainingSeconds: step.RemainingSeconds}
			}

			return &LoginStep{
				State:             StateAwaitingChallenge,
				RemainingAttempts: s.remainingAttempts(ctx, ip, pending.Email),
			}, models.ErrChallengeInvalid
		}
		return nil, models.ErrInternalServer
	}

	s.accountLockout.Clear(ctx, s.accountKey(ip, pending.Email))

	elevated, err := s.sessions.Elevate(ctx, pending)
	if err != nil {
		return nil, err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		Flow:      s.flow.Name,
		AccountID: elevated.AccountID,
		IPAddress: ip,
		Success:   true,
	})

	return &LoginStep{
		State:      StateAuthenticated,
		SessionID:  elevated.ID,
		RedirectTo: RedirectTarget(elevated.Role),
	}, nil
}

// ResendCode re-issues the pending login's challenge. Does not change
// state.
func (s *LoginService) ResendCode(ctx context.Context, sessionID, ip string) error {
	pending, err := s.sessions.GetPending(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.challenges.Resend(ctx, pending.AccountID, pending.Email, pending.Name); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "challenge_resent",
		Flow:      s.flow.Name,
		AccountID: pending.AccountID,
		IPAddress: ip,
		Success:   true,
	})
	return nil
}

// Logout discards the caller's session, pending or authenticated.
func (s *LoginService) Logout(ctx context.Context, sessionID, ip string) error {
	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "logout",
		Flow:      s.flow.Name,
		IPAddress: ip,
		Success:   true,
	})
	return nil
}

// SessionTTLSeconds exposes the authenticated-session lifetime for cookie
// max-age.
func (s *LoginService) SessionTTLSeconds() int {
	return int(s.sessions.authTTL.Seconds())
}

// PendingTTLSeconds exposes the pending-session lifetime for cookie
// max-age.
func (s *LoginService) PendingTTLSeconds() int {
	return int(s.sessions.pendingTTL.Seconds())
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrNoSuchAccount):
		return "no_such_account"
	case errors.Is(err, models.ErrNotEligible):
		return "not_eligible"
	default:
		return "invalid_credentials"
	}
}
