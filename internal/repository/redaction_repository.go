package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinforge/regdoc-api/internal/models"
)

// RedactionRepository persists redaction patterns, scope overrides and
// per-export run records.
type RedactionRepository struct {
	db *sqlx.DB
}

// NewRedactionRepository constructs the repository.
func NewRedactionRepository(db *sqlx.DB) *RedactionRepository {
	return &RedactionRepository{db: db}
}

// CreatePattern inserts a global pattern.
func (r *RedactionRepository) CreatePattern(ctx context.Context, p *models.RedactionPattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO redaction_patterns
	(id, name, pattern, replacement, is_regex, is_global, case_sensitive, priority, enabled, created_at)
	VALUES (:id, :name, :pattern, :replacement, :is_regex, :is_global, :case_sensitive, :priority, :enabled, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create redaction pattern: %w", err)
	}
	return nil
}

// ListPatterns returns every global pattern, enabled or not; the resolver
// decides effective enablement per scope.
func (r *RedactionRepository) ListPatterns(ctx context.Context) ([]models.RedactionPattern, error) {
	const query = `SELECT id, name, pattern, replacement, is_regex, is_global, case_sensitive, priority, enabled, created_at
	FROM redaction_patterns ORDER BY priority ASC, name ASC`
	var patterns []models.RedactionPattern
	if err := r.db.SelectContext(ctx, &patterns, query); err != nil {
		return nil, fmt.Errorf("list redaction patterns: %w", err)
	}
	return patterns, nil
}

// CreateOverride inserts a scope override for a pattern.
func (r *RedactionRepository) CreateOverride(ctx context.Context, o *models.RedactionOverride) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO redaction_overrides
	(id, pattern_id, scope, scope_value, enabled, priority, created_at)
	VALUES (:id, :pattern_id, :scope, :scope_value, :enabled, :priority, :created_at)
	ON CONFLICT (pattern_id, scope, scope_value) DO UPDATE
	SET enabled = EXCLUDED.enabled, priority = EXCLUDED.priority`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("create redaction override: %w", err)
	}
	return nil
}

// ListOverrides returns overrides matching any of the given (scope, value)
// pairs, e.g. tenant=T, type=PROTOCOL, subtype=CSR.
func (r *RedactionRepository) ListOverrides(ctx context.Context, scopes map[models.RedactionScope]string) ([]models.RedactionOverride, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(scopes)*2)
	clauses := make([]string, 0, len(scopes))
	for scope, value := range scopes {
		args = append(args, scope)
		scopeIdx := len(args)
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("(scope = $%d AND scope_value = $%d)", scopeIdx, len(args)))
	}
	query := fmt.Sprintf(`SELECT id, pattern_id, scope, scope_value, enabled, priority, created_at
	FROM redaction_overrides WHERE %s`, strings.Join(clauses, " OR "))
	var overrides []models.RedactionOverride
	if err := r.db.SelectContext(ctx, &overrides, query, args...); err != nil {
		return nil, fmt.Errorf("list redaction overrides: %w", err)
	}
	return overrides, nil
}

// CreateRun persists the audit record of one export-time application.
func (r *RedactionRepository) CreateRun(ctx context.Context, run *models.RedactionRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.RanAt.IsZero() {
		run.RanAt = time.Now().UTC()
	}
	const query = `INSERT INTO redaction_runs
	(id, document_id, version_id, patterns_applied, matches_found, elapsed_ms, ran_by, ran_at)
	VALUES (:id, :document_id, :version_id, :patterns_applied, :matches_found, :elapsed_ms, :ran_by, :ran_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create redaction run: %w", err)
	}
	return nil
}

// ListRuns returns run records for a document, newest first.
func (r *RedactionRepository) ListRuns(ctx context.Context, docID string, limit int) ([]models.RedactionRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, document_id, version_id, patterns_applied, matches_found, elapsed_ms, ran_by, ran_at
	FROM redaction_runs WHERE document_id = $1 ORDER BY ran_at DESC LIMIT $2`
	var runs []models.RedactionRun
	if err := r.db.SelectContext(ctx, &runs, query, docID, limit); err != nil {
		return nil, fmt.Errorf("list redaction runs: %w", err)
	}
	return runs, nil
}
