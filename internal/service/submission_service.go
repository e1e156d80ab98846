package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/export"
	"github.com/clinforge/regdoc-api/pkg/jobs"
)

type submissionStore interface {
	Create(ctx context.Context, pkg *models.SubmissionPackage) error
	GetByID(ctx context.Context, orgID, id string) (*models.SubmissionPackage, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*models.SubmissionPackage, error)
	TransitionState(ctx context.Context, id string, from, to models.PackageState) error
	MarkSubmitted(ctx context.Context, id, trackingID, bundlePath string, submittedAt time.Time) error
	SetValidationStatus(ctx context.Context, id, status string) error
	SetFlagged(ctx context.Context, id string) error
	CreateValidationReport(ctx context.Context, report *models.ValidationReport) error
	LatestValidationReport(ctx context.Context, packageID string) (*models.ValidationReport, error)
	CreateAck(ctx context.Context, ack *models.Acknowledgment) error
	ListAcks(ctx context.Context, packageID string) ([]models.Acknowledgment, error)
	InsertEvent(ctx context.Context, event *models.GatewayEvent) error
	GetEvent(ctx context.Context, id string) (*models.GatewayEvent, error)
	ListUnprocessedEvents(ctx context.Context, limit int) ([]models.GatewayEvent, error)
	MarkEventProcessed(ctx context.Context, id string) error
	MarkEventFailed(ctx context.Context, id, reason string) error
}

type redactionApplier interface {
	Apply(ctx context.Context, orgID, docID, versionID, content, actorID string) (string, *models.RedactionRun, error)
}

type bundleStorage interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

type packageSigner interface {
	SignPackage(ctx context.Context, packageID, signerID, versionID string) error
}

// SubmissionService drives a package through the gateway state machine:
// PREPARING, VALIDATING, SUBMITTED, then staged acknowledgments. State only
// moves forward; REJECTED absorbs everything after it.
type SubmissionService struct {
	repo      submissionStore
	docs      documentReader
	versions  harvestVersionReader
	redaction redactionApplier
	signer    packageSigner
	storage   bundleStorage
	transport GatewayTransport
	pdf       *export.PDFExporter
	metrics   *MetricsService
	audit     auditLogger
	logger    *zap.Logger

	ackQueue   *jobs.Queue
	pollPeriod time.Duration
}

// SubmissionServiceConfig tunes the acknowledgment ingestion worker.
type SubmissionServiceConfig struct {
	AckWorkers      int
	AckRetryDelay   time.Duration
	EventPollPeriod time.Duration
}

// NewSubmissionService constructs the gateway service. Start must be called
// before inbound events are ingested.
func NewSubmissionService(repo submissionStore, docs documentReader, versions harvestVersionReader, redaction redactionApplier, signer packageSigner, storage bundleStorage, transport GatewayTransport, metrics *MetricsService, audit auditLogger, logger *zap.Logger, cfg SubmissionServiceConfig) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SubmissionService{
		repo:      repo,
		docs:      docs,
		versions:  versions,
		redaction: redaction,
		signer:    signer,
		storage:   storage,
		transport: transport,
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		audit:     audit,
		logger:    logger,
	}
	s.ackQueue = jobs.NewQueue("gateway-acks", s.handleAckJob, jobs.QueueConfig{
		Workers:    cfg.AckWorkers,
		RetryDelay: cfg.AckRetryDelay,
		Logger:     logger,
	})
	s.pollPeriod = cfg.EventPollPeriod
	if s.pollPeriod <= 0 {
		s.pollPeriod = 30 * time.Second
	}
	return s
}

// Start launches the acknowledgment workers and the catch-up poller. The
// poller re-enqueues events whose first delivery failed.
func (s *SubmissionService) Start(ctx context.Context) {
	s.ackQueue.Start(ctx)
	go func() {
		ticker := time.NewTicker(s.pollPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.enqueuePending(ctx)
			}
		}
	}()
}

// Stop drains the acknowledgment workers.
func (s *SubmissionService) Stop() {
	s.ackQueue.Stop()
}

// CreatePackage opens a package for a document's current approved version.
func (s *SubmissionService) CreatePackage(ctx context.Context, orgID string, req dto.CreatePackageRequest, createdBy string) (*models.SubmissionPackage, error) {
	doc, err := s.docs.GetByID(ctx, orgID, req.DocumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.Status != models.DocumentStatusApproved || doc.CurrentVersionID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "document has no approved version to submit")
	}

	pkg := &models.SubmissionPackage{
		OrganizationID: orgID,
		DocumentID:     doc.ID,
		VersionID:      *doc.CurrentVersionID,
		Format:         req.Format,
		State:          models.PackageStatePreparing,
		CreatedBy:      createdBy,
	}
	if err := s.repo.Create(ctx, pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create package")
	}
	s.emitTransition(ctx, createdBy, pkg.ID, "", pkg.State)
	return pkg, nil
}

// Validate moves the package into VALIDATING and runs structural checks over
// the version content. Warnings are recorded but never block; errors do.
// Fatal findings reject the package terminally: the referenced version never
// changes, so rerunning validation on the same content cannot recover.
func (s *SubmissionService) Validate(ctx context.Context, orgID, packageID, actorID string) (*models.ValidationReport, error) {
	pkg, err := s.getPackage(ctx, orgID, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.State == models.PackageStatePreparing {
		if err := s.transition(ctx, actorID, pkg, models.PackageStatePreparing, models.PackageStateValidating); err != nil {
			return nil, err
		}
	} else if pkg.State != models.PackageStateValidating {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("package in state %s cannot be validated", pkg.State))
	}

	version, err := s.versions.GetByID(ctx, pkg.VersionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}

	findings := validateBundleContent(version, pkg.Format)
	report := &models.ValidationReport{PackageID: pkg.ID}
	fatal := false
	for _, f := range findings {
		switch f.Severity {
		case models.FindingSeverityFatal:
			report.ErrorCount++
			fatal = true
		case models.FindingSeverityError:
			report.ErrorCount++
		default:
			report.WarningCount++
		}
	}
	report.Findings, _ = json.Marshal(findings)
	if err := s.repo.CreateValidationReport(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store validation report")
	}

	status := "PASSED"
	if report.ErrorCount > 0 {
		status = "FAILED"
	} else if report.WarningCount > 0 {
		status = "PASSED_WITH_WARNINGS"
	}
	if err := s.repo.SetValidationStatus(ctx, pkg.ID, status); err != nil {
		s.logger.Sugar().Warnw("failed to set validation status", "package_id", pkg.ID, "error", err)
	}
	if fatal {
		if err := s.transition(ctx, actorID, pkg, models.PackageStateValidating, models.PackageStateRejected); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// Submit assembles the redacted bundle and hands it to the transport. The
// latest validation run must be error free.
func (s *SubmissionService) Submit(ctx context.Context, orgID, packageID, actorID string) (*models.SubmissionPackage, error) {
	pkg, err := s.getPackage(ctx, orgID, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.State == models.PackageStateRejected {
		return nil, appErrors.ErrPackageRejected
	}
	if pkg.State != models.PackageStateValidating {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("package in state %s cannot be submitted", pkg.State))
	}

	report, err := s.repo.LatestValidationReport(ctx, pkg.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidationBlocked, "package has not been validated")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load validation report")
	}
	if report.ErrorCount > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidationBlocked,
			fmt.Sprintf("validation reported %d error(s)", report.ErrorCount))
	}

	bundlePath, err := s.assembleBundle(ctx, pkg, actorID)
	if err != nil {
		return nil, err
	}
	trackingID, err := s.transport.Send(ctx, pkg, s.storage.Path(bundlePath))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "gateway handoff failed")
	}

	submittedAt := time.Now().UTC()
	if err := s.repo.MarkSubmitted(ctx, pkg.ID, trackingID, bundlePath, submittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrConcurrentModification
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark submitted")
	}
	s.emitTransition(ctx, actorID, pkg.ID, models.PackageStateValidating, models.PackageStateSubmitted)
	if s.metrics != nil {
		s.metrics.RecordPackageTransition(string(models.PackageStateValidating), string(models.PackageStateSubmitted))
	}
	if s.signer != nil {
		if err := s.signer.SignPackage(ctx, pkg.ID, actorID, pkg.VersionID); err != nil {
			s.logger.Sugar().Warnw("failed to sign submission package",
				"package_id", pkg.ID, "error", err)
		}
	}

	pkg.State = models.PackageStateSubmitted
	pkg.TrackingID = &trackingID
	pkg.BundlePath = &bundlePath
	pkg.SubmittedAt = &submittedAt
	return pkg, nil
}

// Status reports the package with its acknowledgments and latest validation.
func (s *SubmissionService) Status(ctx context.Context, orgID, packageID string) (*dto.PackageStatusResponse, error) {
	pkg, err := s.getPackage(ctx, orgID, packageID)
	if err != nil {
		return nil, err
	}
	acks, err := s.repo.ListAcks(ctx, pkg.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list acknowledgments")
	}
	resp := &dto.PackageStatusResponse{Package: *pkg, Acks: acks}
	report, err := s.repo.LatestValidationReport(ctx, pkg.ID)
	if err == nil {
		resp.Validation = report
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load validation report")
	}
	return resp, nil
}

// IngestEvent persists an inbound gateway payload and queues it for the
// acknowledgment workers. The webhook returns as soon as the event is
// durable; processing failures are retried from the queue and the poller.
func (s *SubmissionService) IngestEvent(ctx context.Context, req dto.GatewayEventRequest) (*models.GatewayEvent, error) {
	event := &models.GatewayEvent{
		TrackingID: req.TrackingID,
		Payload:    []byte(req.Payload),
	}
	if err := s.repo.InsertEvent(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store gateway event")
	}
	if err := s.ackQueue.Enqueue(jobs.Job{ID: event.ID, Type: "gateway-ack", Payload: event.ID}); err != nil {
		// The poller will pick it up on the next sweep.
		s.logger.Sugar().Warnw("failed to enqueue gateway event", "event_id", event.ID, "error", err)
	}
	return event, nil
}

func (s *SubmissionService) handleAckJob(ctx context.Context, job jobs.Job) error {
	eventID, _ := job.Payload.(string)
	if eventID == "" {
		return fmt.Errorf("ack job without event id")
	}
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if event.Processed {
		return nil
	}
	if err := s.processEvent(ctx, *event); err != nil {
		if markErr := s.repo.MarkEventFailed(ctx, event.ID, err.Error()); markErr != nil {
			s.logger.Sugar().Errorw("failed to mark event failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}
	return s.repo.MarkEventProcessed(ctx, event.ID)
}

// enqueuePending re-queues events whose earlier delivery attempts failed.
func (s *SubmissionService) enqueuePending(ctx context.Context) {
	events, err := s.repo.ListUnprocessedEvents(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to poll gateway events", "error", err)
		return
	}
	for _, event := range events {
		if err := s.ackQueue.Enqueue(jobs.Job{ID: event.ID, Type: "gateway-ack", Payload: event.ID}); err != nil {
			return
		}
	}
}

// processEvent applies one acknowledgment to the state machine. Stages may
// arrive out of order; the package advances to the highest stage seen and is
// flagged when a stage was skipped.
func (s *SubmissionService) processEvent(ctx context.Context, event models.GatewayEvent) error {
	var payload dto.AckPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("malformed acknowledgment payload: %w", err)
	}
	stage, err := ackStage(payload.AckType)
	if err != nil {
		return err
	}

	pkg, err := s.repo.GetByTrackingID(ctx, event.TrackingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no package for tracking id %s", event.TrackingID)
		}
		return err
	}

	ack := &models.Acknowledgment{
		PackageID:  pkg.ID,
		Stage:      stage,
		ExternalID: payload.AckID,
		Status:     models.AckStatus(strings.ToUpper(payload.Status)),
		RawPayload: event.Payload,
	}
	ack.ReceivedAt = payload.Timestamp
	if ack.ReceivedAt.IsZero() {
		ack.ReceivedAt = time.Now().UTC()
	}
	if err := s.repo.CreateAck(ctx, ack); err != nil {
		return err
	}
	// Latency is measured against the gateway receipt time, not the
	// processing time; a retried event reports the same latency.
	if s.metrics != nil && pkg.SubmittedAt != nil {
		s.metrics.ObserveAckLatency(stage, ack.ReceivedAt.Sub(*pkg.SubmittedAt))
	}
	s.emitAck(ctx, pkg.ID, ack)

	// A rejected package stays rejected; later acks are stored only.
	if pkg.State == models.PackageStateRejected {
		return nil
	}

	if ack.Status == models.AckStatusRejected {
		if err := s.repo.TransitionState(ctx, pkg.ID, pkg.State, models.PackageStateRejected); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		s.emitTransition(ctx, "", pkg.ID, pkg.State, models.PackageStateRejected)
		if s.metrics != nil {
			s.metrics.RecordPackageTransition(string(pkg.State), string(models.PackageStateRejected))
		}
		return nil
	}

	target, ok := models.AckStageState(stage)
	if !ok {
		return fmt.Errorf("acknowledgment stage %d out of range", stage)
	}
	// A stale or duplicate stage never moves the machine backwards.
	if models.StateRank(target) <= models.StateRank(pkg.State) {
		return nil
	}
	if models.StateRank(target) > models.StateRank(pkg.State)+1 {
		if err := s.repo.SetFlagged(ctx, pkg.ID); err != nil {
			s.logger.Sugar().Warnw("failed to flag package", "package_id", pkg.ID, "error", err)
		}
		s.logger.Sugar().Warnw("out-of-order acknowledgment",
			"package_id", pkg.ID, "state", pkg.State, "stage", stage)
	}
	if err := s.repo.TransitionState(ctx, pkg.ID, pkg.State, target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another worker advanced the package first.
			return nil
		}
		return err
	}
	s.emitTransition(ctx, "", pkg.ID, pkg.State, target)
	if s.metrics != nil {
		s.metrics.RecordPackageTransition(string(pkg.State), string(target))
	}
	return nil
}

func (s *SubmissionService) getPackage(ctx context.Context, orgID, packageID string) (*models.SubmissionPackage, error) {
	pkg, err := s.repo.GetByID(ctx, orgID, packageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}
	return pkg, nil
}

func (s *SubmissionService) transition(ctx context.Context, actorID string, pkg *models.SubmissionPackage, from, to models.PackageState) error {
	if err := s.repo.TransitionState(ctx, pkg.ID, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrConcurrentModification
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition package")
	}
	pkg.State = to
	s.emitTransition(ctx, actorID, pkg.ID, from, to)
	if s.metrics != nil {
		s.metrics.RecordPackageTransition(string(from), string(to))
	}
	return nil
}

// bundleManifest is the machine-readable index shipped inside every bundle.
// The gateway matches acknowledgments by tracking id; the manifest lets a
// human reviewer tie an archived bundle back to its package and version.
type bundleManifest struct {
	PackageID       string    `json:"package_id"`
	DocumentID      string    `json:"document_id"`
	VersionID       string    `json:"version_id"`
	VersionNumber   int       `json:"version_number"`
	Format          string    `json:"format"`
	ContentHash     string    `json:"content_hash"`
	RedactionRunID  string    `json:"redaction_run_id"`
	PatternsApplied int       `json:"patterns_applied"`
	AssembledAt     time.Time `json:"assembled_at"`
	Files           []string  `json:"files"`
}

// assembleBundle builds the zip handed to the gateway: a manifest, the
// redacted content document, and a PDF cover sheet.
func (s *SubmissionService) assembleBundle(ctx context.Context, pkg *models.SubmissionPackage, actorID string) (string, error) {
	version, err := s.versions.GetByID(ctx, pkg.VersionID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	redacted, run, err := s.redaction.Apply(ctx, pkg.OrganizationID, pkg.DocumentID, pkg.VersionID, string(version.Content), actorID)
	if err != nil {
		return "", err
	}

	assembledAt := time.Now().UTC()
	manifest, err := json.MarshalIndent(bundleManifest{
		PackageID:       pkg.ID,
		DocumentID:      pkg.DocumentID,
		VersionID:       version.ID,
		VersionNumber:   version.VersionNumber,
		Format:          pkg.Format,
		ContentHash:     version.ContentHash,
		RedactionRunID:  run.ID,
		PatternsApplied: run.PatternsApplied,
		AssembledAt:     assembledAt,
		Files:           []string{"cover-sheet.pdf", "content.json"},
	}, "", "  ")
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build manifest")
	}

	cover, err := s.pdf.Render(export.Dataset{
		Headers: []string{"Field", "Value"},
		Rows: []map[string]string{
			{"Field": "Package", "Value": pkg.ID},
			{"Field": "Document", "Value": pkg.DocumentID},
			{"Field": "Version", "Value": strconv.Itoa(version.VersionNumber)},
			{"Field": "Format", "Value": pkg.Format},
			{"Field": "Content Hash", "Value": version.ContentHash},
			{"Field": "Redaction Patterns", "Value": strconv.Itoa(run.PatternsApplied)},
			{"Field": "Assembled", "Value": assembledAt.Format(time.RFC3339)},
		},
	}, "Submission Cover Sheet")
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render cover sheet")
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{"manifest.json", manifest},
		{"cover-sheet.pdf", cover},
		{"content.json", []byte(redacted)},
	} {
		w, err := zw.Create(entry.name)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble bundle")
		}
		if _, err := w.Write(entry.data); err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble bundle")
		}
	}
	if err := zw.Close(); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble bundle")
	}

	filename := fmt.Sprintf("bundles/%s.zip", pkg.ID)
	if _, err := s.storage.Save(filename, buf.Bytes()); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store bundle")
	}
	return filename, nil
}

func (s *SubmissionService) emitTransition(ctx context.Context, actorID, packageID string, from, to models.PackageState) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
	log := &models.AuditLog{
		Action:     models.AuditActionPackageTransition,
		Resource:   "submission_package",
		ResourceID: &packageID,
		NewValues:  values,
	}
	if actorID != "" {
		log.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", log.Action, "error", err)
	}
}

func (s *SubmissionService) emitAck(ctx context.Context, packageID string, ack *models.Acknowledgment) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(map[string]interface{}{
		"stage": ack.Stage, "status": ack.Status, "external_id": ack.ExternalID,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Action:     models.AuditActionAckReceived,
		Resource:   "submission_package",
		ResourceID: &packageID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", models.AuditActionAckReceived, "error", err)
	}
}

// ackStage extracts the numeric stage from an ack type such as "ACK2".
func ackStage(ackType string) (int, error) {
	t := strings.ToUpper(strings.TrimSpace(ackType))
	if !strings.HasPrefix(t, "ACK") || len(t) != 4 {
		return 0, fmt.Errorf("unknown ack type %q", ackType)
	}
	stage, err := strconv.Atoi(t[3:])
	if err != nil || stage < 1 || stage > 3 {
		return 0, fmt.Errorf("unknown ack type %q", ackType)
	}
	return stage, nil
}

// validateBundleContent runs structural checks over the version content the
// way the agency validator would: a block document, every block complete,
// and at least one block per required top-level section for the format.
// Content that is not a block document at all is fatal.
func validateBundleContent(version *models.DocumentVersion, format string) []models.ValidationFinding {
	findings := make([]models.ValidationFinding, 0)
	blocks, err := parseBlocks(version.Content)
	if err != nil {
		return append(findings, models.ValidationFinding{
			Severity: models.FindingSeverityFatal, Code: "V001", Message: "content is not a block document",
		})
	}
	if len(blocks) == 0 {
		findings = append(findings, models.ValidationFinding{
			Severity: models.FindingSeverityFatal, Code: "V002", Message: "content has no blocks",
		})
	}
	sections := make(map[string]int)
	for _, b := range blocks {
		sections[b.SectionCode]++
		if strings.TrimSpace(b.Body) == "" {
			findings = append(findings, models.ValidationFinding{
				Severity: models.FindingSeverityWarning, Code: "V101",
				Message:  fmt.Sprintf("block %q has an empty body", b.Name),
				Location: b.SectionCode,
			})
		}
	}
	if format == "eCTD" {
		for _, required := range []string{"m1", "m2"} {
			if sections[required] == 0 {
				findings = append(findings, models.ValidationFinding{
					Severity: models.FindingSeverityError, Code: "V003",
					Message:  fmt.Sprintf("required section %s is missing", required),
					Location: required,
				})
			}
		}
	}
	return findings
}
