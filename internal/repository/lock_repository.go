package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinforge/regdoc-api/internal/models"
)

// LockRepository persists exclusive document locks. One row per document;
// expiry is compared against the caller-supplied now so an expired row is
// indistinguishable from no row.
type LockRepository struct {
	db *sqlx.DB
}

// NewLockRepository constructs the repository.
func NewLockRepository(db *sqlx.DB) *LockRepository {
	return &LockRepository{db: db}
}

// Acquire takes or refreshes the lock in a single statement. The upsert only
// fires when the existing row belongs to the same holder or has expired, so
// exactly one of two concurrent callers wins. Returns sql.ErrNoRows when the
// lock is validly held by someone else.
func (r *LockRepository) Acquire(ctx context.Context, lock *models.Lock, now time.Time) error {
	if lock.ID == "" {
		lock.ID = uuid.NewString()
	}
	if lock.AcquiredAt.IsZero() {
		lock.AcquiredAt = now
	}
	const query = `INSERT INTO locks (id, document_id, holder_id, reason, acquired_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (document_id) DO UPDATE
	SET id = EXCLUDED.id, holder_id = EXCLUDED.holder_id, reason = EXCLUDED.reason,
	    acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
	WHERE locks.holder_id = EXCLUDED.holder_id OR locks.expires_at <= $7`
	result, err := r.db.ExecContext(ctx, query,
		lock.ID, lock.DocumentID, lock.HolderID, lock.Reason, lock.AcquiredAt, lock.ExpiresAt, now)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lock rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetActive returns the unexpired lock on a document, or sql.ErrNoRows.
func (r *LockRepository) GetActive(ctx context.Context, docID string, now time.Time) (*models.Lock, error) {
	const query = `SELECT id, document_id, holder_id, reason, acquired_at, expires_at
	FROM locks WHERE document_id = $1 AND expires_at > $2`
	var lock models.Lock
	if err := r.db.GetContext(ctx, &lock, query, docID, now); err != nil {
		return nil, err
	}
	return &lock, nil
}

// Release drops the lock if the holder matches. Releasing an absent or
// foreign lock affects zero rows and is reported as such, not as an error.
func (r *LockRepository) Release(ctx context.Context, docID, holderID string) (bool, error) {
	const query = `DELETE FROM locks WHERE document_id = $1 AND holder_id = $2`
	result, err := r.db.ExecContext(ctx, query, docID, holderID)
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check release rows: %w", err)
	}
	return rows > 0, nil
}

// DeleteExpired removes stale rows. Storage hygiene only; correctness never
// depends on this running.
func (r *LockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM locks WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired locks: %w", err)
	}
	return result.RowsAffected()
}
