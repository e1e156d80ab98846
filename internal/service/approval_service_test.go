package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type approvalStoreStub struct {
	approvals  map[string]*models.Approval
	signatures []models.DigitalSignature
}

func newApprovalStoreStub() *approvalStoreStub {
	return &approvalStoreStub{approvals: make(map[string]*models.Approval)}
}

func (s *approvalStoreStub) CreateBatch(ctx context.Context, versionID string, approverIDs []string) ([]models.Approval, error) {
	created := make([]models.Approval, 0, len(approverIDs))
	for i, approverID := range approverIDs {
		approval := models.Approval{
			ID:         fmt.Sprintf("appr-%s-%d", versionID, len(s.approvals)+1),
			VersionID:  versionID,
			ApproverID: approverID,
			Sequence:   i + 1,
			Status:     models.ApprovalStatusPending,
		}
		copied := approval
		s.approvals[approval.ID] = &copied
		created = append(created, approval)
	}
	return created, nil
}

func (s *approvalStoreStub) GetByID(ctx context.Context, id string) (*models.Approval, error) {
	if a, ok := s.approvals[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) ListByVersion(ctx context.Context, versionID string) ([]models.Approval, error) {
	var result []models.Approval
	for _, a := range s.approvals {
		if a.VersionID == versionID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (s *approvalStoreStub) Decide(ctx context.Context, id string, status models.ApprovalStatus, comment *string, decidedAt time.Time) error {
	a, ok := s.approvals[id]
	if !ok || a.Status != models.ApprovalStatusPending {
		return sql.ErrNoRows
	}
	a.Status = status
	a.Comment = comment
	a.DecidedAt = &decidedAt
	return nil
}

func (s *approvalStoreStub) CountByStatus(ctx context.Context, versionID string) (map[models.ApprovalStatus]int, error) {
	counts := make(map[models.ApprovalStatus]int)
	for _, a := range s.approvals {
		if a.VersionID == versionID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (s *approvalStoreStub) CreateSignature(ctx context.Context, sig *models.DigitalSignature) error {
	sig.ID = fmt.Sprintf("sig-%d", len(s.signatures)+1)
	s.signatures = append(s.signatures, *sig)
	return nil
}

func (s *approvalStoreStub) ListSignatures(ctx context.Context, entityType, entityID string) ([]models.DigitalSignature, error) {
	var result []models.DigitalSignature
	for _, sig := range s.signatures {
		if sig.EntityType == entityType && sig.EntityID == entityID {
			result = append(result, sig)
		}
	}
	return result, nil
}

type promoterStub struct {
	promoted []string
}

func (p *promoterStub) Promote(ctx context.Context, docID, versionID, actorID string) error {
	p.promoted = append(p.promoted, versionID)
	return nil
}

func seedDraftVersion(t *testing.T, versions *versionStoreStub) *models.DocumentVersion {
	t.Helper()
	version := &models.DocumentVersion{
		DocumentID: "doc-1",
		Content:    []byte(blockContent),
		Status:     models.VersionStatusDraft,
		AuthorID:   "user-1",
	}
	require.NoError(t, versions.Create(context.Background(), version))
	return version
}

func TestApprovalServiceRequestMovesVersionIntoReview(t *testing.T) {
	repo := newApprovalStoreStub()
	versions := newVersionStoreStub()
	version := seedDraftVersion(t, versions)
	svc := NewApprovalService(repo, versions, &promoterStub{}, &auditStub{}, nil, "secret")

	approvals, err := svc.RequestApproval(context.Background(), version.ID, []string{"qa-1", "reg-1"}, "user-1")
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	require.Equal(t, 1, approvals[0].Sequence)
	require.Equal(t, models.VersionStatusInReview, versions.versions[version.ID].Status)
}

func TestApprovalServiceRequestValidation(t *testing.T) {
	repo := newApprovalStoreStub()
	versions := newVersionStoreStub()
	version := seedDraftVersion(t, versions)
	svc := NewApprovalService(repo, versions, &promoterStub{}, &auditStub{}, nil, "secret")

	_, err := svc.RequestApproval(context.Background(), version.ID, nil, "user-1")
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.RequestApproval(context.Background(), version.ID, []string{"qa-1", "qa-1"}, "user-1")
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	versions.versions[version.ID].Status = models.VersionStatusRejected
	_, err = svc.RequestApproval(context.Background(), version.ID, []string{"qa-1"}, "user-1")
	require.Equal(t, appErrors.ErrAlreadyRejected.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceFullChainPromotes(t *testing.T) {
	repo := newApprovalStoreStub()
	versions := newVersionStoreStub()
	version := seedDraftVersion(t, versions)
	promoter := &promoterStub{}
	svc := NewApprovalService(repo, versions, promoter, &auditStub{}, nil, "secret")

	approvals, err := svc.RequestApproval(context.Background(), version.ID, []string{"qa-1", "reg-1"}, "user-1")
	require.NoError(t, err)

	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "qa-1", models.ApprovalStatusApproved, "looks good")
	require.NoError(t, err)
	require.Empty(t, promoter.promoted)
	require.Equal(t, models.VersionStatusInReview, versions.versions[version.ID].Status)

	_, err = svc.RecordDecision(context.Background(), approvals[1].ID, "reg-1", models.ApprovalStatusApproved, "")
	require.NoError(t, err)
	require.Equal(t, []string{version.ID}, promoter.promoted)
	require.Equal(t, models.VersionStatusApproved, versions.versions[version.ID].Status)

	// Each decision carries a Part 11 attestation.
	require.Len(t, repo.signatures, 2)
	require.Equal(t, models.SignatureEntityApproval, repo.signatures[0].EntityType)
	require.Equal(t, "HMAC-SHA256", repo.signatures[0].SigningMethod)
}

func TestApprovalServiceRejectionBlocksVersion(t *testing.T) {
	repo := newApprovalStoreStub()
	versions := newVersionStoreStub()
	version := seedDraftVersion(t, versions)
	promoter := &promoterStub{}
	svc := NewApprovalService(repo, versions, promoter, &auditStub{}, nil, "secret")

	approvals, err := svc.RequestApproval(context.Background(), version.ID, []string{"qa-1", "reg-1"}, "user-1")
	require.NoError(t, err)

	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "qa-1", models.ApprovalStatusRejected, "section 3 incomplete")
	require.NoError(t, err)
	require.Equal(t, models.VersionStatusRejected, versions.versions[version.ID].Status)

	// The other approver approving afterwards must not resurrect the version.
	_, err = svc.RecordDecision(context.Background(), approvals[1].ID, "reg-1", models.ApprovalStatusApproved, "")
	require.NoError(t, err)
	require.Empty(t, promoter.promoted)
	require.Equal(t, models.VersionStatusRejected, versions.versions[version.ID].Status)
}

func TestApprovalServiceDecisionGuards(t *testing.T) {
	repo := newApprovalStoreStub()
	versions := newVersionStoreStub()
	version := seedDraftVersion(t, versions)
	svc := NewApprovalService(repo, versions, &promoterStub{}, &auditStub{}, nil, "secret")

	approvals, err := svc.RequestApproval(context.Background(), version.ID, []string{"qa-1"}, "user-1")
	require.NoError(t, err)

	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "intruder", models.ApprovalStatusApproved, "")
	require.Equal(t, appErrors.ErrNotAuthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "qa-1", "MAYBE", "")
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "qa-1", models.ApprovalStatusApproved, "")
	require.NoError(t, err)

	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "qa-1", models.ApprovalStatusApproved, "")
	require.Equal(t, appErrors.ErrNotPending.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceSignaturesForVersion(t *testing.T) {
	repo := newApprovalStoreStub()
	versions := newVersionStoreStub()
	version := seedDraftVersion(t, versions)
	svc := NewApprovalService(repo, versions, &promoterStub{}, &auditStub{}, nil, "secret")

	approvals, err := svc.RequestApproval(context.Background(), version.ID, []string{"qa-1", "reg-1"}, "user-1")
	require.NoError(t, err)
	_, err = svc.RecordDecision(context.Background(), approvals[0].ID, "qa-1", models.ApprovalStatusApproved, "")
	require.NoError(t, err)

	sigs, err := svc.SignaturesForVersion(context.Background(), version.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, "qa-1", sigs[0].SignerID)
}

func TestApprovalServiceSignPackage(t *testing.T) {
	repo := newApprovalStoreStub()
	svc := NewApprovalService(repo, newVersionStoreStub(), &promoterStub{}, &auditStub{}, nil, "secret")

	require.NoError(t, svc.SignPackage(context.Background(), "pkg-1", "user-1", "ver-1"))

	require.Len(t, repo.signatures, 1)
	sig := repo.signatures[0]
	require.Equal(t, models.SignatureEntitySubmission, sig.EntityType)
	require.Equal(t, "pkg-1", sig.EntityID)
	require.Equal(t, "user-1", sig.SignerID)
	require.Equal(t, "HMAC-SHA256", sig.SigningMethod)
	require.Equal(t, models.SignatureStatusValid, sig.Status)
	require.NotEmpty(t, sig.Signature)
}
