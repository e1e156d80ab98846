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

// ApprovalRepository persists approval chains and their signatures.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreateBatch inserts one pending approval per required approver, ordered by
// their position in the request.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, versionID string, approverIDs []string) ([]models.Approval, error) {
	now := time.Now().UTC()
	approvals := make([]models.Approval, 0, len(approverIDs))
	for i, approverID := range approverIDs {
		approvals = append(approvals, models.Approval{
			ID:         uuid.NewString(),
			VersionID:  versionID,
			ApproverID: approverID,
			Sequence:   i + 1,
			Status:     models.ApprovalStatusPending,
			CreatedAt:  now,
		})
	}
	const query = `INSERT INTO approvals (id, version_id, approver_id, sequence, status, comment, decided_at, created_at)
	VALUES (:id, :version_id, :approver_id, :sequence, :status, :comment, :decided_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approvals); err != nil {
		return nil, fmt.Errorf("create approvals: %w", err)
	}
	return approvals, nil
}

// GetByID fetches an approval row.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	const query = `SELECT id, version_id, approver_id, sequence, status, comment, decided_at, created_at
	FROM approvals WHERE id = $1`
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		return nil, err
	}
	return &approval, nil
}

// ListByVersion returns the full chain for a version in sequence order.
func (r *ApprovalRepository) ListByVersion(ctx context.Context, versionID string) ([]models.Approval, error) {
	const query = `SELECT id, version_id, approver_id, sequence, status, comment, decided_at, created_at
	FROM approvals WHERE version_id = $1 ORDER BY sequence ASC`
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, versionID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// Decide records a decision with an optimistic guard on PENDING. Zero rows
// means the approval was already decided.
func (r *ApprovalRepository) Decide(ctx context.Context, id string, status models.ApprovalStatus, comment *string, decidedAt time.Time) error {
	query := fmt.Sprintf(`UPDATE approvals SET status = $1, comment = $2, decided_at = $3
	WHERE id = $4 AND status = '%s'`, models.ApprovalStatusPending)
	result, err := r.db.ExecContext(ctx, query, status, comment, decidedAt, id)
	if err != nil {
		return fmt.Errorf("decide approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus returns the number of approvals in each status for a version.
func (r *ApprovalRepository) CountByStatus(ctx context.Context, versionID string) (map[models.ApprovalStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM approvals WHERE version_id = $1 GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("count approvals: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[models.ApprovalStatus]int)
	for rows.Next() {
		var status models.ApprovalStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan approval count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}

// CreateSignature stores a digital signature bound to an approval or package.
func (r *ApprovalRepository) CreateSignature(ctx context.Context, sig *models.DigitalSignature) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.SignedAt.IsZero() {
		sig.SignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO digital_signatures
	(id, entity_type, entity_id, signer_id, content_hash, signing_method, signature, status, signed_at)
	VALUES (:id, :entity_type, :entity_id, :signer_id, :content_hash, :signing_method, :signature, :status, :signed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sig); err != nil {
		return fmt.Errorf("create signature: %w", err)
	}
	return nil
}

// ListSignatures returns signatures bound to an entity.
func (r *ApprovalRepository) ListSignatures(ctx context.Context, entityType, entityID string) ([]models.DigitalSignature, error) {
	const query = `SELECT id, entity_type, entity_id, signer_id, content_hash, signing_method, signature, status, signed_at
	FROM digital_signatures WHERE entity_type = $1 AND entity_id = $2 ORDER BY signed_at ASC`
	var sigs []models.DigitalSignature
	if err := r.db.SelectContext(ctx, &sigs, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	return sigs, nil
}
