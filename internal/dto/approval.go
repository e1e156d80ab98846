package dto

import "github.com/clinforge/regdoc-api/internal/models"

// RequestApprovalRequest names the required approvers in chain order.
type RequestApprovalRequest struct {
	ApproverIDs []string `json:"approverIds" validate:"required,min=1,dive,required"`
}

// DecisionRequest records one approver's verdict.
type DecisionRequest struct {
	Decision models.ApprovalStatus `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comment  string                `json:"comment"`
}

// ApprovalChainResponse returns the chain plus the version's current status.
type ApprovalChainResponse struct {
	VersionID     string               `json:"version_id"`
	VersionStatus models.VersionStatus `json:"version_status"`
	Approvals     []models.Approval    `json:"approvals"`
}
