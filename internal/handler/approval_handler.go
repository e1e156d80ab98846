package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/response"
)

type approvalService interface {
	RequestApproval(ctx context.Context, versionID string, approverIDs []string, actorID string) ([]models.Approval, error)
	RecordDecision(ctx context.Context, approvalID, actorID string, decision models.ApprovalStatus, comment string) (*models.Approval, error)
	Chain(ctx context.Context, versionID string) ([]models.Approval, models.VersionStatus, error)
	SignaturesForVersion(ctx context.Context, versionID string) ([]models.DigitalSignature, error)
}

// ApprovalHandler exposes the sign-off chain endpoints.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Request godoc
// @Summary Open an approval chain for a version
// @Tags Approvals
// @Accept json
// @Produce json
// @Param versionId path string true "Version ID"
// @Param payload body dto.RequestApprovalRequest true "Approver list"
// @Success 201 {object} response.Envelope
// @Router /versions/{versionId}/approvals [post]
func (h *ApprovalHandler) Request(c *gin.Context) {
	var req dto.RequestApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	approvals, err := h.service.RequestApproval(c.Request.Context(), c.Param("versionId"), req.ApproverIDs, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, approvals)
}

// Decide godoc
// @Summary Record an approver's decision
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	approval, err := h.service.RecordDecision(c.Request.Context(), c.Param("id"), claims.UserID, req.Decision, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Chain godoc
// @Summary Approval chain with the version's current status
// @Tags Approvals
// @Produce json
// @Param versionId path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{versionId}/approvals [get]
func (h *ApprovalHandler) Chain(c *gin.Context) {
	approvals, status, err := h.service.Chain(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ApprovalChainResponse{
		VersionID:     c.Param("versionId"),
		VersionStatus: status,
		Approvals:     approvals,
	}, nil)
}

// Signatures godoc
// @Summary Digital signatures recorded for a version
// @Tags Approvals
// @Produce json
// @Param versionId path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Router /versions/{versionId}/signatures [get]
func (h *ApprovalHandler) Signatures(c *gin.Context) {
	signatures, err := h.service.SignaturesForVersion(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signatures, nil)
}
