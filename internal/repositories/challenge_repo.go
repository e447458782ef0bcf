package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kdlacuna/kainan/internal/database"
	"github.com/kdlacuna/kainan/internal/models"
)

// ChallengeRepository handles login challenge rows. The account id is the
// primary key, so an account has at most one live challenge and issuance
// atomically replaces the previous one.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewChallengeRepository creates a new ChallengeRepository
func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{pool: db.Pool}
}

// Upsert stores the account's sole live challenge, overwriting any prior
// unconsumed code.
func (r *ChallengeRepository) Upsert(ctx context.Context, challenge *models.Challenge) error {
	query := `
		INSERT INTO login_challenges (account_id, code, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			code       = EXCLUDED.code,
			issued_at  = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.pool.Exec(ctx, query,
		challenge.AccountID, challenge.Code, challenge.IssuedAt, challenge.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to store login challenge: %w", database.MapPostgresError(err))
	}
	return nil
}

// Consume atomically tests and deletes the account's challenge. Returns
// true only when the code matched an unexpired challenge; at most one of
// two concurrent submissions of the correct code can succeed.
func (r *ChallengeRepository) Consume(ctx context.Context, accountID, code string) (bool, error) {
	query := `
		DELETE FROM login_challenges
		WHERE account_id = $1 AND code = $2 AND expires_at > now()
	`

	result, err := r.pool.Exec(ctx, query, accountID, code)
	if err != nil {
		return false, fmt.Errorf("failed to consume login challenge: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Get returns the account's live challenge, or models.ErrNotFound.
func (r *ChallengeRepository) Get(ctx context.Context, accountID string) (*models.Challenge, error) {
	query := `
		SELECT account_id, code, issued_at, expires_at
		FROM login_challenges
		WHERE account_id = $1
	`

	var challenge models.Challenge
	err := r.pool.QueryRow(ctx, query, accountID).
		Scan(&challenge.AccountID, &challenge.Code, &challenge.IssuedAt, &challenge.ExpiresAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &challenge, nil
}

// Delete removes the account's challenge. Used to roll back an issuance
// whose delivery failed.
func (r *ChallengeRepository) Delete(ctx context.Context, accountID string) error {
	query := `DELETE FROM login_challenges WHERE account_id = $1`

	_, err := r.pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete login challenge: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges past their expiry.
func (r *ChallengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_challenges WHERE expires_at <= now()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return result.RowsAffected(), nil
}
