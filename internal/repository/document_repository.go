package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinforge/regdoc-api/internal/models"
)

// DocumentRepository persists controlled documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusDraft
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	const query = `INSERT INTO documents
	(id, organization_id, title, type, subtype, status, current_version_id, created_by, created_at, updated_at, archive_at, purge_at)
	VALUES (:id, :organization_id, :title, :type, :subtype, :status, :current_version_id, :created_by, :created_at, :updated_at, :archive_at, :purge_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document scoped to an organization.
func (r *DocumentRepository) GetByID(ctx context.Context, orgID, id string) (*models.Document, error) {
	const query = `SELECT id, organization_id, title, type, subtype, status, current_version_id,
       created_by, created_at, updated_at, archive_at, purge_at
	FROM documents WHERE id = $1 AND organization_id = $2`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, orgID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents matching the filter (newest first).
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT id, organization_id, title, type, subtype, status, current_version_id,
       created_by, created_at, updated_at, archive_at, purge_at FROM documents`)

	conditions := make([]string, 0, 5)
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		conditions = append(conditions, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Subtype != "" {
		args = append(args, filter.Subtype)
		conditions = append(conditions, fmt.Sprintf("subtype = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// SetCurrentVersion moves the current pointer and document status in one
// statement. Used on successful promotion.
func (r *DocumentRepository) SetCurrentVersion(ctx context.Context, docID, versionID string, status models.DocumentStatus) error {
	const query = `UPDATE documents SET current_version_id = $1, status = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, versionID, status, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("set current version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check current version rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus transitions the document lifecycle status.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, docID string, status models.DocumentStatus) error {
	const query = `UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
