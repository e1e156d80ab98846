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

// SubmissionRepository persists submission packages, validation reports,
// acknowledgments and inbound gateway events.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const packageColumns = `id, organization_id, document_id, version_id, tracking_id, format, state, validation_status, bundle_path, flagged, created_by, created_at, submitted_at`

// Create inserts a new package in PREPARING.
func (r *SubmissionRepository) Create(ctx context.Context, pkg *models.SubmissionPackage) error {
	if pkg.ID == "" {
		pkg.ID = uuid.NewString()
	}
	if pkg.State == "" {
		pkg.State = models.PackageStatePreparing
	}
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submission_packages
	(id, organization_id, document_id, version_id, tracking_id, format, state, validation_status, bundle_path, flagged, created_by, created_at, submitted_at)
	VALUES (:id, :organization_id, :document_id, :version_id, :tracking_id, :format, :state, :validation_status, :bundle_path, :flagged, :created_by, :created_at, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pkg); err != nil {
		return fmt.Errorf("create submission package: %w", err)
	}
	return nil
}

// GetByID fetches a package scoped to an organization.
func (r *SubmissionRepository) GetByID(ctx context.Context, orgID, id string) (*models.SubmissionPackage, error) {
	query := fmt.Sprintf(`SELECT %s FROM submission_packages WHERE id = $1 AND organization_id = $2`, packageColumns)
	var pkg models.SubmissionPackage
	if err := r.db.GetContext(ctx, &pkg, query, id, orgID); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetByTrackingID fetches a package by the external tracking identifier.
func (r *SubmissionRepository) GetByTrackingID(ctx context.Context, trackingID string) (*models.SubmissionPackage, error) {
	query := fmt.Sprintf(`SELECT %s FROM submission_packages WHERE tracking_id = $1`, packageColumns)
	var pkg models.SubmissionPackage
	if err := r.db.GetContext(ctx, &pkg, query, trackingID); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// TransitionState moves a package between states with an optimistic guard on
// the expected current state. Zero rows means the package moved concurrently.
func (r *SubmissionRepository) TransitionState(ctx context.Context, id string, from, to models.PackageState) error {
	const query = `UPDATE submission_packages SET state = $1 WHERE id = $2 AND state = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("transition package state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSubmitted records the transport handoff: state, tracking id, bundle
// path and timestamp in one guarded update.
func (r *SubmissionRepository) MarkSubmitted(ctx context.Context, id, trackingID, bundlePath string, submittedAt time.Time) error {
	const query = `UPDATE submission_packages
	SET state = $1, tracking_id = $2, bundle_path = $3, submitted_at = $4
	WHERE id = $5 AND state = $6`
	result, err := r.db.ExecContext(ctx, query,
		models.PackageStateSubmitted, trackingID, bundlePath, submittedAt, id, models.PackageStateValidating)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check submitted rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetValidationStatus updates the denormalized validation outcome.
func (r *SubmissionRepository) SetValidationStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE submission_packages SET validation_status = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("set validation status: %w", err)
	}
	return nil
}

// SetFlagged marks a package as anomalous (out-of-order acknowledgments).
func (r *SubmissionRepository) SetFlagged(ctx context.Context, id string) error {
	const query = `UPDATE submission_packages SET flagged = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("flag package: %w", err)
	}
	return nil
}

// CreateValidationReport stores a validation run.
func (r *SubmissionRepository) CreateValidationReport(ctx context.Context, report *models.ValidationReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.RanAt.IsZero() {
		report.RanAt = time.Now().UTC()
	}
	const query = `INSERT INTO validation_reports (id, package_id, error_count, warning_count, findings, ran_at)
	VALUES (:id, :package_id, :error_count, :warning_count, :findings, :ran_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create validation report: %w", err)
	}
	return nil
}

// LatestValidationReport returns the most recent validation run for a package.
func (r *SubmissionRepository) LatestValidationReport(ctx context.Context, packageID string) (*models.ValidationReport, error) {
	const query = `SELECT id, package_id, error_count, warning_count, findings, ran_at
	FROM validation_reports WHERE package_id = $1 ORDER BY ran_at DESC LIMIT 1`
	var report models.ValidationReport
	if err := r.db.GetContext(ctx, &report, query, packageID); err != nil {
		return nil, err
	}
	return &report, nil
}

// CreateAck stores one acknowledgment. The unique index on (package_id,
// stage) makes re-delivery of the same stage idempotent at the row level.
func (r *SubmissionRepository) CreateAck(ctx context.Context, ack *models.Acknowledgment) error {
	if ack.ID == "" {
		ack.ID = uuid.NewString()
	}
	if ack.ReceivedAt.IsZero() {
		ack.ReceivedAt = time.Now().UTC()
	}
	const query = `INSERT INTO acknowledgments (id, package_id, stage, external_id, status, raw_payload, received_at)
	VALUES (:id, :package_id, :stage, :external_id, :status, :raw_payload, :received_at)
	ON CONFLICT (package_id, stage) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, ack); err != nil {
		return fmt.Errorf("create acknowledgment: %w", err)
	}
	return nil
}

// ListAcks returns acknowledgments for a package in stage order.
func (r *SubmissionRepository) ListAcks(ctx context.Context, packageID string) ([]models.Acknowledgment, error) {
	const query = `SELECT id, package_id, stage, external_id, status, raw_payload, received_at
	FROM acknowledgments WHERE package_id = $1 ORDER BY stage ASC`
	var acks []models.Acknowledgment
	if err := r.db.SelectContext(ctx, &acks, query, packageID); err != nil {
		return nil, fmt.Errorf("list acknowledgments: %w", err)
	}
	return acks, nil
}

// InsertEvent queues an inbound gateway payload for ingestion.
func (r *SubmissionRepository) InsertEvent(ctx context.Context, event *models.GatewayEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	const query = `INSERT INTO gateway_events (id, tracking_id, payload, processed, attempts, last_error, received_at, processed_at)
	VALUES (:id, :tracking_id, :payload, :processed, :attempts, :last_error, :received_at, :processed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert gateway event: %w", err)
	}
	return nil
}

// GetEvent fetches one gateway event.
func (r *SubmissionRepository) GetEvent(ctx context.Context, id string) (*models.GatewayEvent, error) {
	const query = `SELECT id, tracking_id, payload, processed, attempts, last_error, received_at, processed_at
	FROM gateway_events WHERE id = $1`
	var event models.GatewayEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListUnprocessedEvents returns a small batch of pending events, oldest first.
func (r *SubmissionRepository) ListUnprocessedEvents(ctx context.Context, limit int) ([]models.GatewayEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, tracking_id, payload, processed, attempts, last_error, received_at, processed_at
	FROM gateway_events WHERE processed = FALSE ORDER BY received_at ASC LIMIT $1`
	var events []models.GatewayEvent
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("list gateway events: %w", err)
	}
	return events, nil
}

// MarkEventProcessed completes an event.
func (r *SubmissionRepository) MarkEventProcessed(ctx context.Context, id string) error {
	const query = `UPDATE gateway_events SET processed = TRUE, processed_at = $1, last_error = NULL WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// MarkEventFailed records a failed attempt; the event stays queued for retry.
func (r *SubmissionRepository) MarkEventFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE gateway_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, reason, id); err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}
