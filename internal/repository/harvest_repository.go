package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinforge/regdoc-api/internal/models"
)

// HarvestRepository persists harvest rules and their execution records.
type HarvestRepository struct {
	db *sqlx.DB
}

// NewHarvestRepository constructs the repository.
func NewHarvestRepository(db *sqlx.DB) *HarvestRepository {
	return &HarvestRepository{db: db}
}

// CreateRule inserts a harvest rule.
func (r *HarvestRepository) CreateRule(ctx context.Context, rule *models.HarvestRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO harvest_rules
	(id, section_code, name, condition, action, priority, enabled, created_at)
	VALUES (:id, :section_code, :name, :condition, :action, :priority, :enabled, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create harvest rule: %w", err)
	}
	return nil
}

// ListEnabledBySection returns enabled rules for a section, highest priority
// first (evaluation order).
func (r *HarvestRepository) ListEnabledBySection(ctx context.Context, sectionCode string) ([]models.HarvestRule, error) {
	const query = `SELECT id, section_code, name, condition, action, priority, enabled, created_at
	FROM harvest_rules WHERE section_code = $1 AND enabled = TRUE ORDER BY priority DESC, created_at ASC`
	var rulesList []models.HarvestRule
	if err := r.db.SelectContext(ctx, &rulesList, query, sectionCode); err != nil {
		return nil, fmt.Errorf("list harvest rules: %w", err)
	}
	return rulesList, nil
}

// CreateExecution appends a rule execution outcome.
func (r *HarvestRepository) CreateExecution(ctx context.Context, rec *models.RuleExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}
	const query = `INSERT INTO rule_execution_records
	(id, rule_id, document_id, section_code, status, blocks_created, detail, executed_at)
	VALUES (:id, :rule_id, :document_id, :section_code, :status, :blocks_created, :detail, :executed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create rule execution record: %w", err)
	}
	return nil
}

// ListExecutions returns execution records for a document, newest first.
func (r *HarvestRepository) ListExecutions(ctx context.Context, docID string, limit int) ([]models.RuleExecutionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, rule_id, document_id, section_code, status, blocks_created, detail, executed_at
	FROM rule_execution_records WHERE document_id = $1 ORDER BY executed_at DESC LIMIT $2`
	var records []models.RuleExecutionRecord
	if err := r.db.SelectContext(ctx, &records, query, docID, limit); err != nil {
		return nil, fmt.Errorf("list rule executions: %w", err)
	}
	return records, nil
}

// LatestApprovedBySourceType finds the newest approved version of a document
// of the given type within the organization; content pulls read from it.
func (r *HarvestRepository) LatestApprovedBySourceType(ctx context.Context, orgID string, docType models.DocumentType) (*models.DocumentVersion, error) {
	const query = `SELECT v.id, v.document_id, v.version_number, v.content, v.content_hash, v.status, v.author_id, v.change_summary, v.created_at
	FROM document_versions v
	JOIN documents d ON d.id = v.document_id
	WHERE d.organization_id = $1 AND d.type = $2 AND v.status = $3
	ORDER BY v.created_at DESC LIMIT 1`
	var version models.DocumentVersion
	if err := r.db.GetContext(ctx, &version, query, orgID, docType, models.VersionStatusApproved); err != nil {
		return nil, err
	}
	return &version, nil
}
