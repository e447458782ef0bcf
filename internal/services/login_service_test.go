package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdlacuna/kainan/internal/config"
	"github.com/kdlacuna/kainan/internal/models"
)

type loginTestEnv struct {
	attempts   *InMemoryAttemptRepository
	challenges *InMemoryChallengeRepository
	sessions   *InMemorySessionRepository
	notifier   *MockNotifier
	account    *models.Account
	service    *LoginService
}

// newStudentLoginEnv wires a student flow with an immediate 60s timed lock
// at 3 failures, plus an IP-wide gate at 5 failures in 30s.
func newStudentLoginEnv(t *testing.T) *loginTestEnv {
	t.Helper()

	account := NewTestAccount("acct_1", "student@example.com", "Student", models.RoleStudent, "correct-horse-1")

	env := &loginTestEnv{
		attempts:   NewInMemoryAttemptRepository(),
		challenges: NewInMemoryChallengeRepository(),
		sessions:   NewInMemorySessionRepository(),
		notifier:   &MockNotifier{},
		account:    account,
	}

	accountRepo := &MockAccountRepository{
		GetEligibleByEmailFunc: func(ctx context.Context, email string, roles []string) (*models.Account, error) {
			if email == account.Email {
				for _, role := range roles {
					if role == account.Role {
						return account, nil
					}
				}
			}
			return nil, models.ErrNotFound
		},
	}

	accountPolicy := config.LockoutConfig{
		Window:             15 * time.Minute,
		MaxAttempts:        3,
		LockThreshold:      3,
		TimedLockThreshold: 3,
		LockoutDuration:    60 * time.Second,
	}
	ipPolicy := config.LockoutConfig{
		Window:             30 * time.Second,
		MaxAttempts:        3,
		LockThreshold:      5,
		TimedLockThreshold: 5,
		LockoutDuration:    30 * time.Second,
	}

	env.service = NewLoginService(
		FlowConfig{
			Name:                 "student",
			AllowedRoles:         []string{models.RoleStudent},
			RequireVerifiedEmail: true,
		},
		NewCredentialService(accountRepo, testLogger()),
		NewLockoutService(env.attempts, accountPolicy, testLogger()),
		NewLockoutService(env.attempts, ipPolicy, testLogger()),
		NewChallengeService(env.challenges, env.notifier, 10*time.Minute, 60*time.Second, 5*time.Second, testLogger()),
		NewSessionService(env.sessions, 10*time.Minute, 12*time.Hour, testLogger()),
		testTimingDelay(),
		testLogger(),
		testAuditLogger(),
	)
	return env
}

const testIP = "203.0.113.9"

func TestLoginService_HappyPath(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingChallenge, step.State)
	assert.NotEmpty(t, step.SessionID)
	assert.Equal(t, 1, env.notifier.SentCount)

	challenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)

	final, err := env.service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, final.State)
	assert.Equal(t, "/", final.RedirectTo)
	assert.NotEmpty(t, final.SessionID)
	assert.NotEqual(t, step.SessionID, final.SessionID)
}

func TestLoginService_WrongPasswordReportsRemaining(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, StateAwaitingCredentials, step.State)
	require.NotNil(t, step.RemainingAttempts)
	assert.Equal(t, 2, *step.RemainingAttempts)
}

func TestLoginService_UnknownEmailIndistinguishableFromWrongPassword(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	_, errUnknown := env.service.SubmitCredentials(ctx, "ghost@example.com", "whatever12", testIP, "test-agent")
	_, errWrong := env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")

	assert.ErrorIs(t, errUnknown, models.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, models.ErrInvalidCredentials)
}

func TestLoginService_ThirdFailureLocksWithRetryAfter(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")

	var locked *models.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, StateLocked, step.State)
	assert.Greater(t, step.RemainingSeconds, 0)
	assert.LessOrEqual(t, step.RemainingSeconds, 61)
}

func TestLoginService_LockedKeyRejectsEvenCorrectPassword(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")
	}

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")

	var locked *models.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, StateLocked, step.State)
	assert.Equal(t, 0, env.notifier.SentCount)
}

func TestLoginService_SuccessClearsAccountBudget(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")
	}

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingChallenge, step.State)

	// A fresh wrong attempt starts from a full budget again.
	failStep, err := env.service.SubmitCredentials(ctx, "student@example.com", "wrong-password1", testIP, "test-agent")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	require.NotNil(t, failStep.RemainingAttempts)
	assert.Equal(t, 2, *failStep.RemainingAttempts)
}

func TestLoginService_WrongCodeDoesNotConsumeChallenge(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	challenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == challenge.Code {
		wrong = "000001"
	}

	failStep, err := env.service.SubmitCode(ctx, step.SessionID, wrong, testIP)
	assert.ErrorIs(t, err, models.ErrChallengeInvalid)
	assert.Equal(t, StateAwaitingChallenge, failStep.State)

	// The correct code still authenticates.
	final, err := env.service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, final.State)
}

func TestLoginService_CodeFailuresShareAccountBudget(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	challenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)
	wrong := "000000"
	if wrong == challenge.Code {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		_, err := env.service.SubmitCode(ctx, step.SessionID, wrong, testIP)
		assert.ErrorIs(t, err, models.ErrChallengeInvalid)
	}

	lockedStep, err := env.service.SubmitCode(ctx, step.SessionID, wrong, testIP)

	var locked *models.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, StateLocked, lockedStep.State)
	assert.Greater(t, lockedStep.RemainingSeconds, 0)
}

func TestLoginService_AuthenticatedCodeConsumedExactlyOnce(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	challenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)

	_, err = env.service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	require.NoError(t, err)

	// Replaying the same pending session fails: it was consumed by the
	// elevation.
	_, err = env.service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	assert.ErrorIs(t, err, models.ErrNoPendingLogin)
	assert.NotErrorIs(t, err, models.ErrSessionNotPending)
}

func TestLoginService_SubmitCodeWithElevatedSession(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	challenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)

	final, err := env.service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	require.NoError(t, err)

	// Submitting a code while already authenticated reports the session
	// as live rather than missing.
	_, err = env.service.SubmitCode(ctx, final.SessionID, "000000", testIP)
	assert.ErrorIs(t, err, models.ErrSessionNotPending)
}

func TestLoginService_SubmitCodeWithoutPendingSession(t *testing.T) {
	env := newStudentLoginEnv(t)

	_, err := env.service.SubmitCode(context.Background(), "", "123456", testIP)
	assert.ErrorIs(t, err, models.ErrNoPendingLogin)

	_, err = env.service.SubmitCode(context.Background(), "nonexistent", "123456", testIP)
	assert.ErrorIs(t, err, models.ErrNoPendingLogin)
}

func TestLoginService_ReissueReplacesChallenge(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	first, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	// Logging in again replaces both challenge and pending session.
	second, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	secondChallenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)

	final, err := env.service.SubmitCode(ctx, second.SessionID, secondChallenge.Code, testIP)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, final.State)
}

func TestLoginService_DeliveryFailureDoesNotAdvance(t *testing.T) {
	env := newStudentLoginEnv(t)
	env.notifier.SendFunc = func(ctx context.Context, to, subject, htmlBody, textBody string) error {
		return errors.New("ses unavailable")
	}
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")

	assert.ErrorIs(t, err, models.ErrDeliveryFailed)
	assert.Equal(t, StateAwaitingCredentials, step.State)
	assert.Empty(t, step.SessionID)

	// No live challenge remains.
	_, getErr := env.challenges.Get(ctx, "acct_1")
	assert.ErrorIs(t, getErr, models.ErrNotFound)
}

func TestLoginService_ResendCode(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)
	assert.Equal(t, 1, env.notifier.SentCount)

	// Within the cooldown the resend is silently absorbed.
	require.NoError(t, env.service.ResendCode(ctx, step.SessionID, testIP))
	assert.Equal(t, 1, env.notifier.SentCount)

	// Backdate the issue time past the cooldown.
	challenge := env.challenges.Challenges["acct_1"]
	challenge.IssuedAt = time.Now().Add(-2 * time.Minute)

	require.NoError(t, env.service.ResendCode(ctx, step.SessionID, testIP))
	assert.Equal(t, 2, env.notifier.SentCount)
}

func TestLoginService_ResendWithoutPendingSession(t *testing.T) {
	env := newStudentLoginEnv(t)

	err := env.service.ResendCode(context.Background(), "nonexistent", testIP)

	assert.ErrorIs(t, err, models.ErrNoPendingLogin)
}

func TestLoginService_IPGateLocksAcrossDistinctEmails(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	// Five failures against different unknown emails from one source.
	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com"}
	for _, email := range emails {
		env.service.SubmitCredentials(ctx, email, "wrong-password1", testIP, "test-agent")
	}

	// The source is now blocked even for the real account.
	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")

	var locked *models.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, StateLocked, step.State)

	// A different source is unaffected.
	ok, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", "198.51.100.7", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingChallenge, ok.State)
}

func TestLoginService_StaffFlowRedirect(t *testing.T) {
	account := NewTestAccount("acct_9", "admin@example.com", "Admin", models.RoleAdmin, "correct-horse-1")
	attempts := NewInMemoryAttemptRepository()
	challenges := NewInMemoryChallengeRepository()
	sessions := NewInMemorySessionRepository()
	notifier := &MockNotifier{}

	accountRepo := &MockAccountRepository{
		GetEligibleByEmailFunc: func(ctx context.Context, email string, roles []string) (*models.Account, error) {
			return account, nil
		},
	}

	service := NewLoginService(
		FlowConfig{
			Name:         "staff",
			AllowedRoles: []string{models.RoleStaff, models.RoleAdmin, models.RoleSuperAdmin},
		},
		NewCredentialService(accountRepo, testLogger()),
		NewLockoutService(attempts, testLockoutPolicy(), testLogger()),
		nil,
		NewChallengeService(challenges, notifier, 10*time.Minute, 60*time.Second, 5*time.Second, testLogger()),
		NewSessionService(sessions, 10*time.Minute, 12*time.Hour, testLogger()),
		testTimingDelay(),
		testLogger(),
		testAuditLogger(),
	)
	ctx := context.Background()

	step, err := service.SubmitCredentials(ctx, "admin@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	challenge, err := challenges.Get(ctx, "acct_9")
	require.NoError(t, err)

	final, err := service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	require.NoError(t, err)
	assert.Equal(t, "/admin", final.RedirectTo)
}

func TestLoginService_LogoutInvalidatesSession(t *testing.T) {
	env := newStudentLoginEnv(t)
	ctx := context.Background()

	step, err := env.service.SubmitCredentials(ctx, "student@example.com", "correct-horse-1", testIP, "test-agent")
	require.NoError(t, err)

	challenge, err := env.challenges.Get(ctx, "acct_1")
	require.NoError(t, err)

	final, err := env.service.SubmitCode(ctx, step.SessionID, challenge.Code, testIP)
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(ctx, final.SessionID, testIP))

	_, err = env.sessions.Get(ctx, final.SessionID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Logging out again, or with no session at all, is harmless.
	assert.NoError(t, env.service.Logout(ctx, final.SessionID, testIP))
	assert.NoError(t, env.service.Logout(ctx, "", testIP))
}
