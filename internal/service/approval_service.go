package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type approvalStore interface {
	CreateBatch(ctx context.Context, versionID string, approverIDs []string) ([]models.Approval, error)
	GetByID(ctx context.Context, id string) (*models.Approval, error)
	ListByVersion(ctx context.Context, versionID string) ([]models.Approval, error)
	Decide(ctx context.Context, id string, status models.ApprovalStatus, comment *string, decidedAt time.Time) error
	CountByStatus(ctx context.Context, versionID string) (map[models.ApprovalStatus]int, error)
	CreateSignature(ctx context.Context, sig *models.DigitalSignature) error
	ListSignatures(ctx context.Context, entityType, entityID string) ([]models.DigitalSignature, error)
}

type versionReader interface {
	GetByID(ctx context.Context, id string) (*models.DocumentVersion, error)
	UpdateStatus(ctx context.Context, versionID string, from, to models.VersionStatus) error
}

type versionPromoter interface {
	Promote(ctx context.Context, docID, versionID, actorID string) error
}

// ApprovalService gates a version's promotion behind an ordered sign-off
// chain. Order is advisory; approvers act in parallel. One rejection blocks
// the version permanently.
type ApprovalService struct {
	repo       approvalStore
	versions   versionReader
	promoter   versionPromoter
	audit      auditLogger
	logger     *zap.Logger
	signSecret []byte
}

// NewApprovalService constructs the approval workflow service.
func NewApprovalService(repo approvalStore, versions versionReader, promoter versionPromoter, audit auditLogger, logger *zap.Logger, signingSecret string) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		repo:       repo,
		versions:   versions,
		promoter:   promoter,
		audit:      audit,
		logger:     logger,
		signSecret: []byte(signingSecret),
	}
}

// RequestApproval creates one pending approval per required approver and
// moves the version into review.
func (s *ApprovalService) RequestApproval(ctx context.Context, versionID string, approverIDs []string, actorID string) ([]models.Approval, error) {
	if len(approverIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one approver is required")
	}
	seen := make(map[string]struct{}, len(approverIDs))
	for _, id := range approverIDs {
		if id == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approver ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate approver "+id)
		}
		seen[id] = struct{}{}
	}

	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	switch version.Status {
	case models.VersionStatusDraft:
		if err := s.versions.UpdateStatus(ctx, versionID, models.VersionStatusDraft, models.VersionStatusInReview); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "version moved concurrently")
		}
	case models.VersionStatusRejected:
		return nil, appErrors.ErrAlreadyRejected
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("version %s is %s and cannot enter review", versionID, version.Status))
	}

	approvals, err := s.repo.CreateBatch(ctx, versionID, approverIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approvals")
	}
	s.emitAudit(ctx, actorID, models.AuditActionApprovalRequest, versionID, approvals)
	return approvals, nil
}

// RecordDecision stores one approver's verdict with a Part 11 signature,
// then attempts promotion. Fails with NotPending when already decided and
// NotAuthorized when the actor is not the designated approver.
func (s *ApprovalService) RecordDecision(ctx context.Context, approvalID, actorID string, decision models.ApprovalStatus, comment string) (*models.Approval, error) {
	if decision != models.ApprovalStatusApproved && decision != models.ApprovalStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED or REJECTED")
	}
	approval, err := s.repo.GetByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}
	if approval.ApproverID != actorID {
		return nil, appErrors.Clone(appErrors.ErrNotAuthorized,
			fmt.Sprintf("approval %s is assigned to %s", approvalID, approval.ApproverID))
	}
	if approval.Status != models.ApprovalStatusPending {
		return nil, appErrors.Clone(appErrors.ErrNotPending,
			fmt.Sprintf("approval %s is already %s", approvalID, approval.Status))
	}

	now := time.Now().UTC()
	var commentPtr *string
	if comment != "" {
		commentPtr = &comment
	}
	if err := s.repo.Decide(ctx, approvalID, decision, commentPtr, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotPending
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	approval.Status = decision
	approval.Comment = commentPtr
	approval.DecidedAt = &now

	if err := s.signEntity(ctx, models.SignatureEntityApproval, approvalID, actorID, approval.VersionID, string(decision)); err != nil {
		s.logger.Sugar().Warnw("failed to record signature", "approval_id", approvalID, "error", err)
	}
	s.emitAudit(ctx, actorID, models.AuditActionApprovalDecision, approvalID, approval)

	// Promotion is attempted opportunistically; a still-pending chain is the
	// normal case, not a failure of the decision.
	if _, err := s.TryPromote(ctx, approval.VersionID, actorID); err != nil {
		s.logger.Sugar().Debugw("promotion not possible yet", "version_id", approval.VersionID, "reason", err)
	}
	return approval, nil
}

// TryPromote flips the version to Approved, and the owning document's
// current pointer, only when every required approval is Approved. A single
// rejection short-circuits the version to Rejected permanently.
func (s *ApprovalService) TryPromote(ctx context.Context, versionID, actorID string) (bool, error) {
	counts, err := s.repo.CountByStatus(ctx, versionID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count approvals")
	}
	total := counts[models.ApprovalStatusPending] + counts[models.ApprovalStatusApproved] + counts[models.ApprovalStatusRejected]
	if total == 0 {
		return false, appErrors.Clone(appErrors.ErrConflict, "no approvals requested for version "+versionID)
	}

	if counts[models.ApprovalStatusRejected] > 0 {
		if err := s.versions.UpdateStatus(ctx, versionID, models.VersionStatusInReview, models.VersionStatusRejected); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject version")
		}
		return false, appErrors.ErrAlreadyRejected
	}
	if counts[models.ApprovalStatusPending] > 0 {
		return false, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("version %s has %d approvals pending", versionID, counts[models.ApprovalStatusPending]))
	}

	// All required approvals are Approved. The status guard makes retries
	// after a transient failure idempotent.
	if err := s.versions.UpdateStatus(ctx, versionID, models.VersionStatusInReview, models.VersionStatusApproved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve version")
	}
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload version")
	}
	if err := s.promoter.Promote(ctx, version.DocumentID, versionID, actorID); err != nil {
		return false, err
	}
	return true, nil
}

// Chain returns the approval chain with the version's current status.
func (s *ApprovalService) Chain(ctx context.Context, versionID string) ([]models.Approval, models.VersionStatus, error) {
	version, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.ErrNotFound
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	approvals, err := s.repo.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, version.Status, nil
}

// Signatures returns the Part 11 attestations bound to an entity.
func (s *ApprovalService) Signatures(ctx context.Context, entityType, entityID string) ([]models.DigitalSignature, error) {
	sigs, err := s.repo.ListSignatures(ctx, entityType, entityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signatures")
	}
	return sigs, nil
}

// SignaturesForVersion gathers the attestations across the whole chain.
func (s *ApprovalService) SignaturesForVersion(ctx context.Context, versionID string) ([]models.DigitalSignature, error) {
	approvals, err := s.repo.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	all := make([]models.DigitalSignature, 0, len(approvals))
	for _, approval := range approvals {
		sigs, err := s.Signatures(ctx, models.SignatureEntityApproval, approval.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, sigs...)
	}
	return all, nil
}

// SignPackage attests a submission package at the moment of gateway handoff.
// The signature binds the submitting actor to the package and the version it
// carries.
func (s *ApprovalService) SignPackage(ctx context.Context, packageID, signerID, versionID string) error {
	if err := s.signEntity(ctx, models.SignatureEntitySubmission, packageID, signerID, versionID, "SUBMITTED"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign submission package")
	}
	return nil
}

// signEntity hashes the signed content and binds an HMAC attestation to it.
func (s *ApprovalService) signEntity(ctx context.Context, entityType, entityID, signerID, versionID, verdict string) error {
	payload := fmt.Sprintf("%s|%s|%s|%s", entityType, entityID, versionID, verdict)
	digest := sha256.Sum256([]byte(payload))
	mac := hmac.New(sha256.New, s.signSecret)
	mac.Write(digest[:])
	return s.repo.CreateSignature(ctx, &models.DigitalSignature{
		EntityType:    entityType,
		EntityID:      entityID,
		SignerID:      signerID,
		ContentHash:   hex.EncodeToString(digest[:]),
		SigningMethod: "HMAC-SHA256",
		Signature:     hex.EncodeToString(mac.Sum(nil)),
		Status:        models.SignatureStatusValid,
	})
}

func (s *ApprovalService) emitAudit(ctx context.Context, userID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	var values []byte
	if payload != nil {
		values, _ = json.Marshal(payload)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "approval",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}
