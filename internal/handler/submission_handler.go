package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/response"
)

type submissionService interface {
	CreatePackage(ctx context.Context, orgID string, req dto.CreatePackageRequest, createdBy string) (*models.SubmissionPackage, error)
	Validate(ctx context.Context, orgID, packageID, actorID string) (*models.ValidationReport, error)
	Submit(ctx context.Context, orgID, packageID, actorID string) (*models.SubmissionPackage, error)
	Status(ctx context.Context, orgID, packageID string) (*dto.PackageStatusResponse, error)
	IngestEvent(ctx context.Context, req dto.GatewayEventRequest) (*models.GatewayEvent, error)
}

type bundleOpener interface {
	Open(filename string) (*os.File, error)
}

type bundleURLSigner interface {
	Generate(packageID, bundlePath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (packageID, bundlePath string, expiresAt time.Time, err error)
}

// SubmissionHandler exposes the gateway surface plus the inbound webhook.
type SubmissionHandler struct {
	service submissionService
	storage bundleOpener
	signer  bundleURLSigner
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service submissionService, storage bundleOpener, signer bundleURLSigner) *SubmissionHandler {
	return &SubmissionHandler{service: service, storage: storage, signer: signer}
}

// Create godoc
// @Summary Open a submission package
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.CreatePackageRequest true "Package payload"
// @Success 201 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req dto.CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid package payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pkg, err := h.service.CreatePackage(c.Request.Context(), claims.OrganizationID, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pkg)
}

// Validate godoc
// @Summary Run structural validation on a package
// @Tags Submissions
// @Produce json
// @Param id path string true "Package ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/validate [post]
func (h *SubmissionHandler) Validate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	report, err := h.service.Validate(c.Request.Context(), claims.OrganizationID, c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Submit godoc
// @Summary Assemble the bundle and hand it to the gateway
// @Tags Submissions
// @Produce json
// @Param id path string true "Package ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/submit [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pkg, err := h.service.Submit(c.Request.Context(), claims.OrganizationID, c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pkg, nil)
}

// Status godoc
// @Summary Package state, acknowledgments and validation
// @Tags Submissions
// @Produce json
// @Param id path string true "Package ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.service.Status(c.Request.Context(), claims.OrganizationID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// BundleURL godoc
// @Summary Signed download link for the assembled bundle
// @Tags Submissions
// @Produce json
// @Param id path string true "Package ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/bundle-url [get]
func (h *SubmissionHandler) BundleURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.service.Status(c.Request.Context(), claims.OrganizationID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if status.Package.BundlePath == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "bundle not assembled yet"))
		return
	}
	token, expiresAt, err := h.signer.Generate(status.Package.ID, *status.Package.BundlePath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign bundle url"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/submissions/bundles/download?token=" + token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a bundle with a signed token
// @Tags Submissions
// @Produce application/zip
// @Param token query string true "Signed token"
// @Success 200 "bundle"
// @Router /submissions/bundles/download [get]
func (h *SubmissionHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	_, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token"))
		return
	}
	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "bundle not found"))
		return
	}
	defer file.Close() //nolint:errcheck
	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(relPath))
	c.Header("Content-Type", "application/zip")
	c.File(file.Name())
}

// GatewayEvent godoc
// @Summary Inbound acknowledgment webhook
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.GatewayEventRequest true "Event"
// @Success 202 {object} response.Envelope
// @Router /gateway/events [post]
func (h *SubmissionHandler) GatewayEvent(c *gin.Context) {
	var req dto.GatewayEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid event payload"))
		return
	}
	event, err := h.service.IngestEvent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"event_id": event.ID}, nil)
}
