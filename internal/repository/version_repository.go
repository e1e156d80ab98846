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

// VersionRepository persists the append-only document version ledger.
// Version rows never change content after insert; only status moves.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs the repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

const versionColumns = `id, document_id, version_number, content, content_hash, status, author_id, change_summary, created_at`

// Create inserts a new version. The version number is assigned inside the
// statement as max(existing)+1 so concurrent writers cannot collide; the
// unique index on (document_id, version_number) backs this up.
func (r *VersionRepository) Create(ctx context.Context, version *models.DocumentVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.Status == "" {
		version.Status = models.VersionStatusDraft
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO document_versions
	(id, document_id, version_number, content, content_hash, status, author_id, change_summary, created_at)
	SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, $6, $7, $8
	FROM document_versions WHERE document_id = $2
	RETURNING version_number`
	if err := r.db.QueryRowxContext(ctx, query,
		version.ID, version.DocumentID, version.Content, version.ContentHash,
		version.Status, version.AuthorID, version.ChangeSummary, version.CreatedAt,
	).Scan(&version.VersionNumber); err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	return nil
}

// GetByID fetches a version by identifier.
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_versions WHERE id = $1`, versionColumns)
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetByNumber fetches one version of a document by its number.
func (r *VersionRepository) GetByNumber(ctx context.Context, docID string, number int) (*models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_versions WHERE document_id = $1 AND version_number = $2`, versionColumns)
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, docID, number); err != nil {
		return nil, err
	}
	return &version, nil
}

// Latest fetches the newest version of a document by number.
func (r *VersionRepository) Latest(ctx context.Context, docID string) (*models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC LIMIT 1`, versionColumns)
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, docID); err != nil {
		return nil, err
	}
	return &version, nil
}

// History returns every version of a document, newest first.
func (r *VersionRepository) History(ctx context.Context, docID string) ([]models.DocumentVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC`, versionColumns)
	var versions []models.DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, docID); err != nil {
		return nil, fmt.Errorf("version history: %w", err)
	}
	return versions, nil
}

// UpdateStatus moves a version between statuses with an optimistic guard on
// the expected current status.
func (r *VersionRepository) UpdateStatus(ctx context.Context, versionID string, from, to models.VersionStatus) error {
	const query = `UPDATE document_versions SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, versionID, from)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check version status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SupersedePrior marks every approved version of a document other than the
// given one as superseded. Called when a new version is promoted to current.
func (r *VersionRepository) SupersedePrior(ctx context.Context, docID, keepVersionID string) (int64, error) {
	const query = `UPDATE document_versions SET status = $1
	WHERE document_id = $2 AND id <> $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query,
		models.VersionStatusSuperseded, docID, keepVersionID, models.VersionStatusApproved)
	if err != nil {
		return 0, fmt.Errorf("supersede prior versions: %w", err)
	}
	return result.RowsAffected()
}
