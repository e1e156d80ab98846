package service

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	promdto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type submissionStoreStub struct {
	packages   map[string]*models.SubmissionPackage
	byTracking map[string]string
	reports    []*models.ValidationReport
	acks       []models.Acknowledgment
	events     map[string]*models.GatewayEvent
}

func newSubmissionStoreStub() *submissionStoreStub {
	return &submissionStoreStub{
		packages:   make(map[string]*models.SubmissionPackage),
		byTracking: make(map[string]string),
		events:     make(map[string]*models.GatewayEvent),
	}
}

func (s *submissionStoreStub) Create(ctx context.Context, pkg *models.SubmissionPackage) error {
	if pkg.ID == "" {
		pkg.ID = fmt.Sprintf("pkg-%d", len(s.packages)+1)
	}
	pkg.CreatedAt = time.Now().UTC()
	copied := *pkg
	s.packages[pkg.ID] = &copied
	return nil
}

func (s *submissionStoreStub) GetByID(ctx context.Context, orgID, id string) (*models.SubmissionPackage, error) {
	if pkg, ok := s.packages[id]; ok && pkg.OrganizationID == orgID {
		copied := *pkg
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *submissionStoreStub) GetByTrackingID(ctx context.Context, trackingID string) (*models.SubmissionPackage, error) {
	if id, ok := s.byTracking[trackingID]; ok {
		copied := *s.packages[id]
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *submissionStoreStub) TransitionState(ctx context.Context, id string, from, to models.PackageState) error {
	pkg, ok := s.packages[id]
	if !ok || pkg.State != from {
		return sql.ErrNoRows
	}
	pkg.State = to
	return nil
}

func (s *submissionStoreStub) MarkSubmitted(ctx context.Context, id, trackingID, bundlePath string, submittedAt time.Time) error {
	pkg, ok := s.packages[id]
	if !ok || pkg.State != models.PackageStateValidating {
		return sql.ErrNoRows
	}
	pkg.State = models.PackageStateSubmitted
	pkg.TrackingID = &trackingID
	pkg.BundlePath = &bundlePath
	pkg.SubmittedAt = &submittedAt
	s.byTracking[trackingID] = id
	return nil
}

func (s *submissionStoreStub) SetValidationStatus(ctx context.Context, id, status string) error {
	pkg, ok := s.packages[id]
	if !ok {
		return sql.ErrNoRows
	}
	pkg.ValidationStatus = &status
	return nil
}

func (s *submissionStoreStub) SetFlagged(ctx context.Context, id string) error {
	pkg, ok := s.packages[id]
	if !ok {
		return sql.ErrNoRows
	}
	pkg.Flagged = true
	return nil
}

func (s *submissionStoreStub) CreateValidationReport(ctx context.Context, report *models.ValidationReport) error {
	if report.ID == "" {
		report.ID = fmt.Sprintf("report-%d", len(s.reports)+1)
	}
	report.RanAt = time.Now().UTC()
	copied := *report
	s.reports = append(s.reports, &copied)
	return nil
}

func (s *submissionStoreStub) LatestValidationReport(ctx context.Context, packageID string) (*models.ValidationReport, error) {
	for i := len(s.reports) - 1; i >= 0; i-- {
		if s.reports[i].PackageID == packageID {
			copied := *s.reports[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *submissionStoreStub) CreateAck(ctx context.Context, ack *models.Acknowledgment) error {
	if ack.ID == "" {
		ack.ID = fmt.Sprintf("ack-%d", len(s.acks)+1)
	}
	if ack.ReceivedAt.IsZero() {
		ack.ReceivedAt = time.Now().UTC()
	}
	s.acks = append(s.acks, *ack)
	return nil
}

func (s *submissionStoreStub) ListAcks(ctx context.Context, packageID string) ([]models.Acknowledgment, error) {
	var result []models.Acknowledgment
	for _, ack := range s.acks {
		if ack.PackageID == packageID {
			result = append(result, ack)
		}
	}
	return result, nil
}

func (s *submissionStoreStub) InsertEvent(ctx context.Context, event *models.GatewayEvent) error {
	if event.ID == "" {
		event.ID = fmt.Sprintf("event-%d", len(s.events)+1)
	}
	event.ReceivedAt = time.Now().UTC()
	copied := *event
	s.events[event.ID] = &copied
	return nil
}

func (s *submissionStoreStub) GetEvent(ctx context.Context, id string) (*models.GatewayEvent, error) {
	if event, ok := s.events[id]; ok {
		copied := *event
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *submissionStoreStub) ListUnprocessedEvents(ctx context.Context, limit int) ([]models.GatewayEvent, error) {
	var result []models.GatewayEvent
	for _, event := range s.events {
		if !event.Processed {
			result = append(result, *event)
		}
	}
	return result, nil
}

func (s *submissionStoreStub) MarkEventProcessed(ctx context.Context, id string) error {
	event, ok := s.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	event.Processed = true
	return nil
}

func (s *submissionStoreStub) MarkEventFailed(ctx context.Context, id, reason string) error {
	event, ok := s.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	event.Attempts++
	event.LastError = &reason
	return nil
}

type transportStub struct {
	trackingID string
	sent       []string
	err        error
}

func (t *transportStub) Send(ctx context.Context, pkg *models.SubmissionPackage, bundlePath string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	t.sent = append(t.sent, bundlePath)
	return t.trackingID, nil
}

type bundleStorageStub struct {
	saved map[string][]byte
}

func (b *bundleStorageStub) Save(filename string, data []byte) (string, error) {
	if b.saved == nil {
		b.saved = make(map[string][]byte)
	}
	b.saved[filename] = data
	return filename, nil
}

func (b *bundleStorageStub) Path(filename string) string {
	return "/var/bundles/" + filename
}

type redactionApplierStub struct {
	applied int
}

func (r *redactionApplierStub) Apply(ctx context.Context, orgID, docID, versionID, content, actorID string) (string, *models.RedactionRun, error) {
	r.applied++
	return content, &models.RedactionRun{
		DocumentID: docID, VersionID: versionID, PatternsApplied: 2, MatchesFound: 3, RanBy: actorID,
	}, nil
}

type signedPackage struct {
	packageID string
	signerID  string
	versionID string
}

type packageSignerStub struct {
	signed []signedPackage
}

func (p *packageSignerStub) SignPackage(ctx context.Context, packageID, signerID, versionID string) error {
	p.signed = append(p.signed, signedPackage{packageID: packageID, signerID: signerID, versionID: versionID})
	return nil
}

const submittableContent = `{"blocks":[` +
	`{"name":"cover","section_code":"m1","block_type":"TEXT","body":"Cover letter"},` +
	`{"name":"summary","section_code":"m2","block_type":"TEXT","body":"Clinical overview"}]}`

type submissionFixture struct {
	svc       *SubmissionService
	repo      *submissionStoreStub
	transport *transportStub
	storage   *bundleStorageStub
	redaction *redactionApplierStub
	signer    *packageSignerStub
	audit     *auditStub
	doc       *models.Document
}

func newSubmissionFixture(t *testing.T, content string) *submissionFixture {
	t.Helper()
	versions := newVersionStoreStub()
	version := &models.DocumentVersion{
		DocumentID:  "doc-1",
		Content:     []byte(content),
		ContentHash: "f0f1f2",
		Status:      models.VersionStatusApproved,
	}
	require.NoError(t, versions.Create(context.Background(), version))

	doc := csrDocument()
	doc.CurrentVersionID = &version.ID

	f := &submissionFixture{
		repo:      newSubmissionStoreStub(),
		transport: &transportStub{trackingID: "TRK-001"},
		storage:   &bundleStorageStub{},
		redaction: &redactionApplierStub{},
		signer:    &packageSignerStub{},
		audit:     &auditStub{},
		doc:       doc,
	}
	f.svc = NewSubmissionService(f.repo, &docReaderStub{doc: doc}, versions, f.redaction,
		f.signer, f.storage, f.transport, nil, f.audit, nil, SubmissionServiceConfig{})
	return f
}

func (f *submissionFixture) createPackage(t *testing.T) *models.SubmissionPackage {
	t.Helper()
	pkg, err := f.svc.CreatePackage(context.Background(), "org-1",
		dto.CreatePackageRequest{DocumentID: "doc-1", Format: "eCTD"}, "user-1")
	require.NoError(t, err)
	return pkg
}

func (f *submissionFixture) submit(t *testing.T) *models.SubmissionPackage {
	t.Helper()
	pkg := f.createPackage(t)
	_, err := f.svc.Validate(context.Background(), "org-1", pkg.ID, "user-1")
	require.NoError(t, err)
	pkg, err = f.svc.Submit(context.Background(), "org-1", pkg.ID, "user-1")
	require.NoError(t, err)
	return pkg
}

func ackEvent(trackingID, ackType, status string) models.GatewayEvent {
	return ackEventAt(trackingID, ackType, status, time.Now().UTC())
}

func ackEventAt(trackingID, ackType, status string, received time.Time) models.GatewayEvent {
	payload, _ := json.Marshal(dto.AckPayload{
		AckType: ackType, AckID: "ext-" + ackType, Status: status, Timestamp: received,
	})
	return models.GatewayEvent{ID: "event-x", TrackingID: trackingID, Payload: payload}
}

func TestSubmissionServiceCreatePackage(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)

	pkg := f.createPackage(t)
	require.Equal(t, models.PackageStatePreparing, pkg.State)
	require.Equal(t, *f.doc.CurrentVersionID, pkg.VersionID)
	require.Len(t, f.audit.logs, 1)

	_, err := f.svc.CreatePackage(context.Background(), "org-2",
		dto.CreatePackageRequest{DocumentID: "doc-1", Format: "eCTD"}, "user-1")
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceCreatePackageRequiresApprovedVersion(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	f.doc.CurrentVersionID = nil

	_, err := f.svc.CreatePackage(context.Background(), "org-1",
		dto.CreatePackageRequest{DocumentID: "doc-1", Format: "eCTD"}, "user-1")
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceValidatePasses(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.createPackage(t)

	report, err := f.svc.Validate(context.Background(), "org-1", pkg.ID, "user-1")
	require.NoError(t, err)
	require.Zero(t, report.ErrorCount)
	require.Zero(t, report.WarningCount)

	stored := f.repo.packages[pkg.ID]
	require.Equal(t, models.PackageStateValidating, stored.State)
	require.Equal(t, "PASSED", *stored.ValidationStatus)
}

func TestSubmissionServiceValidateFindings(t *testing.T) {
	// m1 is missing entirely and the m2 block body is blank.
	content := `{"blocks":[{"name":"summary","section_code":"m2","block_type":"TEXT","body":"  "}]}`
	f := newSubmissionFixture(t, content)
	pkg := f.createPackage(t)

	report, err := f.svc.Validate(context.Background(), "org-1", pkg.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, report.ErrorCount)
	require.Equal(t, 1, report.WarningCount)

	var findings []models.ValidationFinding
	require.NoError(t, json.Unmarshal(report.Findings, &findings))
	codes := make([]string, 0, len(findings))
	for _, finding := range findings {
		codes = append(codes, finding.Code)
	}
	require.ElementsMatch(t, []string{"V003", "V101"}, codes)
	require.Equal(t, "FAILED", *f.repo.packages[pkg.ID].ValidationStatus)
}

func TestSubmissionServiceValidateFatalFindingRejects(t *testing.T) {
	// The version content is immutable, so a bundle that is not a block
	// document at all can never pass on a rerun.
	f := newSubmissionFixture(t, `not a block document`)
	pkg := f.createPackage(t)

	report, err := f.svc.Validate(context.Background(), "org-1", pkg.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, report.ErrorCount)

	var findings []models.ValidationFinding
	require.NoError(t, json.Unmarshal(report.Findings, &findings))
	require.Len(t, findings, 1)
	require.Equal(t, "V001", findings[0].Code)
	require.Equal(t, models.FindingSeverityFatal, findings[0].Severity)

	stored := f.repo.packages[pkg.ID]
	require.Equal(t, models.PackageStateRejected, stored.State)
	require.Equal(t, "FAILED", *stored.ValidationStatus)

	_, err = f.svc.Submit(context.Background(), "org-1", pkg.ID, "user-1")
	require.Equal(t, appErrors.ErrPackageRejected.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Validate(context.Background(), "org-1", pkg.ID, "user-1")
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceSubmitBlockedByValidationErrors(t *testing.T) {
	content := `{"blocks":[{"name":"summary","section_code":"m2","block_type":"TEXT","body":"text"}]}`
	f := newSubmissionFixture(t, content)
	pkg := f.createPackage(t)

	_, err := f.svc.Validate(context.Background(), "org-1", pkg.ID, "user-1")
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), "org-1", pkg.ID, "user-1")
	require.Equal(t, appErrors.ErrValidationBlocked.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.transport.sent)
}

func TestSubmissionServiceSubmitRequiresValidationRun(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.createPackage(t)

	// Still PREPARING; the machine only submits out of VALIDATING.
	_, err := f.svc.Submit(context.Background(), "org-1", pkg.ID, "user-1")
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceSubmit(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)

	require.Equal(t, models.PackageStateSubmitted, pkg.State)
	require.Equal(t, "TRK-001", *pkg.TrackingID)
	require.NotNil(t, pkg.SubmittedAt)
	require.Equal(t, 1, f.redaction.applied)

	require.Len(t, f.transport.sent, 1)
	bundleKey := fmt.Sprintf("bundles/%s.zip", pkg.ID)
	require.Equal(t, "/var/bundles/"+bundleKey, f.transport.sent[0])
	require.NotEmpty(t, f.storage.saved[bundleKey])

	require.Len(t, f.signer.signed, 1)
	require.Equal(t, signedPackage{packageID: pkg.ID, signerID: "user-1", versionID: pkg.VersionID}, f.signer.signed[0])

	stored, err := f.repo.GetByTrackingID(context.Background(), "TRK-001")
	require.NoError(t, err)
	require.Equal(t, pkg.ID, stored.ID)
}

func TestSubmissionServiceBundleManifest(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)

	bundle := f.storage.saved[fmt.Sprintf("bundles/%s.zip", pkg.ID)]
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	require.ElementsMatch(t, []string{"manifest.json", "cover-sheet.pdf", "content.json"}, names)

	entry, err := zr.Open("manifest.json")
	require.NoError(t, err)
	defer entry.Close()
	var manifest bundleManifest
	require.NoError(t, json.NewDecoder(entry).Decode(&manifest))
	require.Equal(t, pkg.ID, manifest.PackageID)
	require.Equal(t, "doc-1", manifest.DocumentID)
	require.Equal(t, pkg.VersionID, manifest.VersionID)
	require.Equal(t, 1, manifest.VersionNumber)
	require.Equal(t, "eCTD", manifest.Format)
	require.Equal(t, "f0f1f2", manifest.ContentHash)
	require.Equal(t, 2, manifest.PatternsApplied)
	require.False(t, manifest.AssembledAt.IsZero())
	require.ElementsMatch(t, []string{"cover-sheet.pdf", "content.json"}, manifest.Files)
}

func TestSubmissionServiceSubmitRejectedPackage(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.createPackage(t)
	f.repo.packages[pkg.ID].State = models.PackageStateRejected

	_, err := f.svc.Submit(context.Background(), "org-1", pkg.ID, "user-1")
	require.Equal(t, appErrors.ErrPackageRejected.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceProcessEventAdvances(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)

	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK1", "ACCEPTED")))

	stored := f.repo.packages[pkg.ID]
	require.Equal(t, models.PackageStateAck1Received, stored.State)
	require.False(t, stored.Flagged)
	acks, err := f.repo.ListAcks(context.Background(), pkg.ID)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	require.Equal(t, 1, acks[0].Stage)
	require.Equal(t, models.AckStatusAccepted, acks[0].Status)
}

func TestSubmissionServiceAckLatencyUsesReceiptTime(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	f.svc.metrics = NewMetricsService()
	pkg := f.submit(t)

	// The event is processed well after the gateway stamped it; the
	// observed latency must come from the receipt timestamp.
	received := pkg.SubmittedAt.Add(10 * time.Minute)
	require.NoError(t, f.svc.processEvent(context.Background(), ackEventAt("TRK-001", "ACK1", "ACCEPTED", received)))

	families, err := f.svc.metrics.registry.Gather()
	require.NoError(t, err)
	var histogram *promdto.Histogram
	for _, family := range families {
		if family.GetName() != "gateway_ack_latency_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "stage" && label.GetValue() == "1" {
					histogram = metric.GetHistogram()
				}
			}
		}
	}
	require.NotNil(t, histogram)
	require.Equal(t, uint64(1), histogram.GetSampleCount())
	require.InDelta(t, 600, histogram.GetSampleSum(), 0.001)
}

func TestSubmissionServiceProcessEventOutOfOrder(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)

	// ACK2 lands before ACK1: the package advances and is flagged.
	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK2", "ACCEPTED")))

	stored := f.repo.packages[pkg.ID]
	require.Equal(t, models.PackageStateAck2Received, stored.State)
	require.True(t, stored.Flagged)
}

func TestSubmissionServiceProcessEventStaleStage(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)

	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK2", "ACCEPTED")))
	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK1", "ACCEPTED")))

	// The late ACK1 is recorded but never moves the machine backwards.
	stored := f.repo.packages[pkg.ID]
	require.Equal(t, models.PackageStateAck2Received, stored.State)
	acks, err := f.repo.ListAcks(context.Background(), pkg.ID)
	require.NoError(t, err)
	require.Len(t, acks, 2)
}

func TestSubmissionServiceProcessEventRejectionIsAbsorbing(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)

	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK2", "REJECTED")))
	require.Equal(t, models.PackageStateRejected, f.repo.packages[pkg.ID].State)

	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK3", "ACCEPTED")))
	require.Equal(t, models.PackageStateRejected, f.repo.packages[pkg.ID].State)
	acks, err := f.repo.ListAcks(context.Background(), pkg.ID)
	require.NoError(t, err)
	require.Len(t, acks, 2)
}

func TestSubmissionServiceProcessEventUnknownTracking(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	f.submit(t)

	err := f.svc.processEvent(context.Background(), ackEvent("TRK-999", "ACK1", "ACCEPTED"))
	require.Error(t, err)
}

func TestSubmissionServiceIngestEventPersists(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)

	// The queue is not started; the event is still durable for the poller.
	event, err := f.svc.IngestEvent(context.Background(), dto.GatewayEventRequest{
		TrackingID: "TRK-001",
		Payload:    json.RawMessage(`{"ack_type":"ACK1","status":"ACCEPTED"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.False(t, f.repo.events[event.ID].Processed)
}

func TestSubmissionServiceStatus(t *testing.T) {
	f := newSubmissionFixture(t, submittableContent)
	pkg := f.submit(t)
	require.NoError(t, f.svc.processEvent(context.Background(), ackEvent("TRK-001", "ACK1", "ACCEPTED")))

	status, err := f.svc.Status(context.Background(), "org-1", pkg.ID)
	require.NoError(t, err)
	require.Equal(t, models.PackageStateAck1Received, status.Package.State)
	require.Len(t, status.Acks, 1)
	require.NotNil(t, status.Validation)
	require.Zero(t, status.Validation.ErrorCount)
}

func TestAckStage(t *testing.T) {
	cases := []struct {
		in      string
		stage   int
		wantErr bool
	}{
		{in: "ACK1", stage: 1},
		{in: " ack3 ", stage: 3},
		{in: "ACK4", wantErr: true},
		{in: "NACK", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		stage, err := ackStage(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.stage, stage)
	}
}
