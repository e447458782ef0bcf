package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/kdlacuna/kainan/internal/auth"
	"github.com/kdlacuna/kainan/internal/config"
	"github.com/kdlacuna/kainan/internal/models"
	pkgauth "github.com/kdlacuna/kainan/pkg/auth"
	pkglogger "github.com/kdlacuna/kainan/pkg/logger"
)

// MockAttemptRepository implements AttemptRepository for testing
type MockAttemptRepository struct {
	IncrementFunc func(ctx context.Context, key models.AttemptKey, lockThreshold, timedLockThreshold int, lockoutSeconds, windowSeconds int64) (*models.AttemptRecord, error)
	GetFunc       func(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error)
	DeleteFunc    func(ctx context.Context, key models.AttemptKey) error
}

func (m *MockAttemptRepository) Increment(ctx context.Context, key models.AttemptKey, lockThreshold, timedLockThreshold int, lockoutSeconds, windowSeconds int64) (*models.AttemptRecord, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, key, lockThreshold, timedLockThreshold, lockoutSeconds, windowSeconds)
	}
	return &models.AttemptRecord{Key: key, FailureCount: 1, LastFailureAt: time.Now()}, nil
}

func (m *MockAttemptRepository) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, models.ErrNotFound
}

func (m *MockAttemptRepository) Delete(ctx context.Context, key models.AttemptKey) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

// InMemoryAttemptRepository is a map-backed ledger that reproduces the
// upsert-increment semantics of the real one, for orchestration tests.
type InMemoryAttemptRepository struct {
	Records map[models.AttemptKey]*models.AttemptRecord
}

func NewInMemoryAttemptRepository() *InMemoryAttemptRepository {
	return &InMemoryAttemptRepository{Records: make(map[models.AttemptKey]*models.AttemptRecord)}
}

func (r *InMemoryAttemptRepository) Increment(ctx context.Context, key models.AttemptKey, lockThreshold, timedLockThreshold int, lockoutSeconds, windowSeconds int64) (*models.AttemptRecord, error) {
	record, ok := r.Records[key]
	if !ok {
		record = &models.AttemptRecord{Key: key}
		r.Records[key] = record
	}
	window := time.Duration(windowSeconds) * time.Second
	lockElapsed := record.LockedUntil == nil || record.LockedUntil.Before(time.Now())
	if ok && time.Since(record.LastFailureAt) > window && lockElapsed {
		record.FailureCount = 0
		record.Locked = false
		record.LockedUntil = nil
	}
	record.FailureCount++
	record.LastFailureAt = time.Now()
	if record.FailureCount >= lockThreshold {
		record.Locked = true
	}
	if record.FailureCount >= timedLockThreshold {
		until := time.Now().Add(time.Duration(lockoutSeconds) * time.Second)
		record.LockedUntil = &until
	}
	copied := *record
	return &copied, nil
}

func (r *InMemoryAttemptRepository) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	record, ok := r.Records[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *InMemoryAttemptRepository) Delete(ctx context.Context, key models.AttemptKey) error {
	delete(r.Records, key)
	return nil
}

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetEligibleByEmailFunc func(ctx context.Context, email string, roles []string) (*models.Account, error)
}

func (m *MockAccountRepository) GetEligibleByEmail(ctx context.Context, email string, roles []string) (*models.Account, error) {
	if m.GetEligibleByEmailFunc != nil {
		return m.GetEligibleByEmailFunc(ctx, email, roles)
	}
	return nil, models.ErrNotFound
}

// MockChallengeRepository implements ChallengeRepository for testing
type MockChallengeRepository struct {
	UpsertFunc  func(ctx context.Context, challenge *models.Challenge) error
	ConsumeFunc func(ctx context.Context, accountID, code string) (bool, error)
	GetFunc     func(ctx context.Context, accountID string) (*models.Challenge, error)
	DeleteFunc  func(ctx context.Context, accountID string) error
}

func (m *MockChallengeRepository) Upsert(ctx context.Context, challenge *models.Challenge) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, challenge)
	}
	return nil
}

func (m *MockChallengeRepository) Consume(ctx context.Context, accountID, code string) (bool, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, accountID, code)
	}
	return false, nil
}

func (m *MockChallengeRepository) Get(ctx context.Context, accountID string) (*models.Challenge, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockChallengeRepository) Delete(ctx context.Context, accountID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, accountID)
	}
	return nil
}

// InMemoryChallengeRepository reproduces single-use consume semantics for
// orchestration tests.
type InMemoryChallengeRepository struct {
	Challenges map[string]*models.Challenge
}

func NewInMemoryChallengeRepository() *InMemoryChallengeRepository {
	return &InMemoryChallengeRepository{Challenges: make(map[string]*models.Challenge)}
}

func (r *InMemoryChallengeRepository) Upsert(ctx context.Context, challenge *models.Challenge) error {
	copied := *challenge
	r.Challenges[challenge.AccountID] = &copied
	return nil
}

func (r *InMemoryChallengeRepository) Consume(ctx context.Context, accountID, code string) (bool, error) {
	challenge, ok := r.Challenges[accountID]
	if !ok || challenge.Code != code || challenge.IsExpired() {
		return false, nil
	}
	delete(r.Challenges, accountID)
	return true, nil
}

func (r *InMemoryChallengeRepository) Get(ctx context.Context, accountID string) (*models.Challenge, error) {
	challenge, ok := r.Challenges[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (r *InMemoryChallengeRepository) Delete(ctx context.Context, accountID string) error {
	delete(r.Challenges, accountID)
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc  func(ctx context.Context, session *models.Session) error
	GetFunc     func(ctx context.Context, id string) (*models.Session, error)
	ReplaceFunc func(ctx context.Context, oldID string, elevated *models.Session) error
	DeleteFunc  func(ctx context.Context, id string) error
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Replace(ctx context.Context, oldID string, elevated *models.Session) error {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, oldID, elevated)
	}
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// InMemorySessionRepository reproduces replace semantics for orchestration
// tests.
type InMemorySessionRepository struct {
	Sessions map[string]*models.Session
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{Sessions: make(map[string]*models.Session)}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, session *models.Session) error {
	copied := *session
	r.Sessions[session.ID] = &copied
	return nil
}

func (r *InMemorySessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	session, ok := r.Sessions[id]
	if !ok || session.IsExpired() {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *InMemorySessionRepository) Replace(ctx context.Context, oldID string, elevated *models.Session) error {
	if _, ok := r.Sessions[oldID]; !ok {
		return models.ErrNotFound
	}
	delete(r.Sessions, oldID)
	copied := *elevated
	r.Sessions[elevated.ID] = &copied
	return nil
}

func (r *InMemorySessionRepository) Delete(ctx context.Context, id string) error {
	delete(r.Sessions, id)
	return nil
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	SendFunc  func(ctx context.Context, to, subject, htmlBody, textBody string) error
	SentCount int
	LastTo    string
	LastText  string
}

func (m *MockNotifier) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	m.SentCount++
	m.LastTo = to
	m.LastText = textBody
	if m.SendFunc != nil {
		return m.SendFunc(ctx, to, subject, htmlBody, textBody)
	}
	return nil
}

// NewTestAccount creates an active, verified account with a real bcrypt
// hash of the given password.
func NewTestAccount(id, email, name, role, password string) *models.Account {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	now := time.Now()
	return &models.Account{
		ID:            id,
		Email:         email,
		Name:          name,
		Role:          role,
		PasswordHash:  hash,
		EmailVerified: true,
		Status:        "active",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testTimingDelay() *auth.TimingDelay {
	return auth.NewTimingDelay(auth.TimingConfig{})
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// testLockoutPolicy locks at 3 failures and adds a timed lock at 5.
func testLockoutPolicy() config.LockoutConfig {
	return config.LockoutConfig{
		Window:             15 * time.Minute,
		MaxAttempts:        3,
		LockThreshold:      3,
		TimedLockThreshold: 5,
		LockoutDuration:    15 * time.Minute,
	}
}
