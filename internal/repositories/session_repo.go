package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kdlacuna/kainan/internal/database"
	"github.com/kdlacuna/kainan/internal/models"
)

// SessionRepository stores pending and authenticated sessions keyed by an
// opaque identifier.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// rowScanner interface for scanning rows (single row or pgx.Rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session
	var loginAt *time.Time

	err := scanner.Scan(
		&session.ID, &session.AccountID, &session.Email, &session.Name,
		&session.Role, &session.Flow, &session.State,
		&session.CreatedAt, &session.ExpiresAt, &loginAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	session.LoginAt = loginAt
	return &session, nil
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, account_id, email, name, role, flow, state, created_at, expires_at, login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		session.ID, session.AccountID, session.Email, session.Name,
		session.Role, session.Flow, session.State,
		session.CreatedAt, session.ExpiresAt, session.LoginAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
	}
	return nil
}

// Get returns an unexpired session by identifier, or models.ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, account_id, email, name, role, flow, state, created_at, expires_at, login_at
		FROM sessions
		WHERE id = $1 AND expires_at > now()
	`

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, id))
}

// Replace deletes the old session and inserts the elevated one in a single
// transaction, so the identifier regeneration at the privilege boundary is
// all-or-nothing. Returns models.ErrNotFound if the old session is gone
// (already elevated by a concurrent request, or expired and purged).
func (r *SessionRepository) Replace(ctx context.Context, oldID string, elevated *models.Session) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, oldID)
		if err != nil {
			return fmt.Errorf("failed to discard pending session: %w", err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (id, account_id, email, name, role, flow, state, created_at, expires_at, login_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			elevated.ID, elevated.AccountID, elevated.Email, elevated.Name,
			elevated.Role, elevated.Flow, elevated.State,
			elevated.CreatedAt, elevated.ExpiresAt, elevated.LoginAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create elevated session: %w", database.MapPostgresError(err))
		}
		return nil
	})
}

// Delete removes a session by identifier.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= now()`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
