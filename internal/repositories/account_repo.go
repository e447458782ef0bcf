package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kdlacuna/kainan/internal/database"
	"github.com/kdlacuna/kainan/internal/models"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Email, &passwordHash, &account.Name,
		&account.Role, &account.EmailVerified, &account.Status,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}
	return &account, nil
}

// GetEligibleByEmail looks up an account whose role matches the flow's
// allowed-role filter. An existing account with a disallowed role comes
// back as models.ErrNotFound, indistinguishable from no account at all.
func (r *AccountRepository) GetEligibleByEmail(ctx context.Context, email string, roles []string) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, name, role, email_verified, status, created_at, updated_at
		FROM accounts
		WHERE email = $1 AND role = ANY($2)
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, email, roles))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, name, role, email_verified, status, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()
	now := time.Now()

	query := `
		INSERT INTO accounts (id, email, password_hash, name, role, email_verified, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, email, password_hash, name, role, email_verified, status, created_at, updated_at
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.Name,
		account.Role, account.EmailVerified, account.Status, now, now,
	))
}
