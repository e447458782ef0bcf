package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kdlacuna/kainan/internal/database"
	"github.com/kdlacuna/kainan/internal/models"
)

// AttemptRepository handles failed-login counter rows. Increments are a
// single upsert so concurrent failures from the same key never lose counts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{pool: db.Pool}
}

// Increment bumps the failure counter for a key, creating the record on
// first failure, and derives the lock columns from the thresholds in the
// same statement. A failure arriving after the rolling window has passed
// (and any timed lock has elapsed) restarts the count at 1 instead of
// stacking onto stale failures. Returns the resulting record.
func (r *AttemptRepository) Increment(ctx context.Context, key models.AttemptKey, lockThreshold, timedLockThreshold int, lockoutSeconds, windowSeconds int64) (*models.AttemptRecord, error) {
	query := `
		INSERT INTO login_attempt_records AS ar
			(flow, source_ip, identifier, failure_count, last_failure_at, locked, locked_until)
		VALUES
			($1, $2, $3, 1, now(), 1 >= $4,
			 CASE WHEN 1 >= $5 THEN now() + make_interval(secs => $6) END)
		ON CONFLICT (flow, source_ip, identifier) DO UPDATE SET
			failure_count = CASE
				WHEN ar.last_failure_at < now() - make_interval(secs => $7)
				     AND (ar.locked_until IS NULL OR ar.locked_until < now())
				THEN 1
				ELSE ar.failure_count + 1
			END,
			last_failure_at = now(),
			locked = CASE
				WHEN ar.last_failure_at < now() - make_interval(secs => $7)
				     AND (ar.locked_until IS NULL OR ar.locked_until < now())
				THEN 1 >= $4
				ELSE ar.locked OR ar.failure_count + 1 >= $4
			END,
			locked_until = CASE
				WHEN ar.last_failure_at < now() - make_interval(secs => $7)
				     AND (ar.locked_until IS NULL OR ar.locked_until < now())
				THEN CASE WHEN 1 >= $5 THEN now() + make_interval(secs => $6) END
				WHEN ar.failure_count + 1 >= $5 THEN now() + make_interval(secs => $6)
				ELSE ar.locked_until
			END
		RETURNING failure_count, last_failure_at, locked, locked_until
	`

	record := &models.AttemptRecord{Key: key}
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, query,
		key.Flow, key.SourceIP, key.Identifier,
		lockThreshold, timedLockThreshold, lockoutSeconds, windowSeconds,
	).Scan(&record.FailureCount, &record.LastFailureAt, &record.Locked, &lockedUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", database.MapPostgresError(err))
	}

	record.LockedUntil = lockedUntil
	return record, nil
}

// Get returns the attempt record for a key, or models.ErrNotFound.
func (r *AttemptRepository) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	query := `
		SELECT failure_count, last_failure_at, locked, locked_until
		FROM login_attempt_records
		WHERE flow = $1 AND source_ip = $2 AND identifier = $3
	`

	record := &models.AttemptRecord{Key: key}
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, query, key.Flow, key.SourceIP, key.Identifier).
		Scan(&record.FailureCount, &record.LastFailureAt, &record.Locked, &lockedUntil)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	record.LockedUntil = lockedUntil
	return record, nil
}

// Delete removes the record for a key. Called on successful credential
// validation and on lazy expiry of an elapsed lock.
func (r *AttemptRepository) Delete(ctx context.Context, key models.AttemptKey) error {
	query := `
		DELETE FROM login_attempt_records
		WHERE flow = $1 AND source_ip = $2 AND identifier = $3
	`

	_, err := r.pool.Exec(ctx, query, key.Flow, key.SourceIP, key.Identifier)
	if err != nil {
		return fmt.Errorf("failed to clear attempt record: %w", err)
	}
	return nil
}

// DeleteStale removes records whose window and lock have both elapsed.
// Lazy expiry on read governs correctness; this bounds table growth.
func (r *AttemptRepository) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM login_attempt_records
		WHERE last_failure_at < now() - make_interval(secs => $1)
		  AND (locked_until IS NULL OR locked_until < now())
	`

	result, err := r.pool.Exec(ctx, query, int64(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale attempt records: %w", err)
	}
	return result.RowsAffected(), nil
}
