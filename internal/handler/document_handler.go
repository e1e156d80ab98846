package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/middleware"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/response"
)

type documentVersionService interface {
	CreateDocument(ctx context.Context, orgID, title string, docType models.DocumentType, subtype, createdBy string) (*models.Document, error)
	GetDocument(ctx context.Context, orgID, docID string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	CreateVersion(ctx context.Context, orgID, docID string, content []byte, authorID, changeSummary string) (*models.DocumentVersion, error)
	GetVersion(ctx context.Context, orgID, docID string, number int) (*models.DocumentVersion, error)
	History(ctx context.Context, orgID, docID string) ([]models.DocumentVersion, error)
	Diff(ctx context.Context, orgID, docID string, base, compare int) (*models.VersionDiff, error)
}

type lockService interface {
	Acquire(ctx context.Context, docID, holderID string, ttl time.Duration, reason string) (*models.Lock, error)
	Release(ctx context.Context, docID, holderID string) error
}

// DocumentHandler exposes the controlled-document surface: documents, their
// version history, diffs and edit locks.
type DocumentHandler struct {
	versions documentVersionService
	locks    lockService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(versions documentVersionService, locks lockService) *DocumentHandler {
	return &DocumentHandler{versions: versions, locks: locks}
}

// Create godoc
// @Summary Register a controlled document
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.versions.CreateDocument(c.Request.Context(), claims.OrganizationID, req.Title, req.Type, req.Subtype, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Get godoc
// @Summary Get a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.versions.GetDocument(c.Request.Context(), claims.OrganizationID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// List godoc
// @Summary List documents
// @Tags Documents
// @Produce json
// @Param type query string false "Document type"
// @Param subtype query string false "Document subtype"
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Title search"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.DocumentFilter{
		OrganizationID: claims.OrganizationID,
		Type:           models.DocumentType(strings.ToUpper(c.Query("type"))),
		Subtype:        strings.TrimSpace(c.Query("subtype")),
		Search:         strings.TrimSpace(c.Query("search")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part != "" {
				filter.Status = append(filter.Status, models.DocumentStatus(part))
			}
		}
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.versions.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// CreateVersion godoc
// @Summary Append a new version under a held lock
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.CreateVersionRequest true "Version payload"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/versions [post]
func (h *DocumentHandler) CreateVersion(c *gin.Context) {
	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	version, err := h.versions.CreateVersion(c.Request.Context(), claims.OrganizationID, c.Param("id"), []byte(req.Content), claims.UserID, req.ChangeSummary)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, version)
}

// GetVersion godoc
// @Summary Get one version by number
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Param number path int true "Version number"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions/{number} [get]
func (h *DocumentHandler) GetVersion(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version number"))
		return
	}
	version, err := h.versions.GetVersion(c.Request.Context(), claims.OrganizationID, c.Param("id"), number)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// History godoc
// @Summary Full version history, newest first
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *DocumentHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	versions, err := h.versions.History(c.Request.Context(), claims.OrganizationID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// Diff godoc
// @Summary Line diff between two versions
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Param base query int true "Base version number"
// @Param compare query int true "Compare version number"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/diff [get]
func (h *DocumentHandler) Diff(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.DiffQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "base and compare version numbers are required"))
		return
	}
	diff, err := h.versions.Diff(c.Request.Context(), claims.OrganizationID, c.Param("id"), query.Base, query.Compare)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, diff.Cached)
	response.JSON(c, http.StatusOK, diff, nil, middleware.ExtractMeta(c))
}

// AcquireLock godoc
// @Summary Acquire or refresh the edit lock
// @Tags Locks
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.AcquireLockRequest false "Lock options"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/lock [post]
func (h *DocumentHandler) AcquireLock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AcquireLockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lock payload"))
			return
		}
	}
	lock, err := h.locks.Acquire(c.Request.Context(), c.Param("id"), claims.UserID, time.Duration(req.TTLSeconds)*time.Second, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lock, nil)
}

// ReleaseLock godoc
// @Summary Release the edit lock
// @Tags Locks
// @Produce json
// @Param id path string true "Document ID"
// @Success 204 "released"
// @Router /documents/{id}/lock [delete]
func (h *DocumentHandler) ReleaseLock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.locks.Release(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
