package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/middleware"
	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/response"
)

type redactionService interface {
	CreatePattern(ctx context.Context, p *models.RedactionPattern) error
	CreateOverride(ctx context.Context, o *models.RedactionOverride) error
	Resolve(ctx context.Context, orgID, docID string) ([]models.ResolvedPattern, bool, error)
	Apply(ctx context.Context, orgID, docID, versionID, content, actorID string) (string, *models.RedactionRun, error)
	Runs(ctx context.Context, docID string, limit int) ([]models.RedactionRun, error)
}

type redactionVersionService interface {
	GetVersion(ctx context.Context, orgID, docID string, number int) (*models.DocumentVersion, error)
}

// RedactionHandler exposes pattern administration and export-time preview.
type RedactionHandler struct {
	service  redactionService
	versions redactionVersionService
}

// NewRedactionHandler constructs the handler.
func NewRedactionHandler(service redactionService, versions redactionVersionService) *RedactionHandler {
	return &RedactionHandler{service: service, versions: versions}
}

// CreatePattern godoc
// @Summary Register a global redaction pattern
// @Tags Redaction
// @Accept json
// @Produce json
// @Param payload body dto.CreatePatternRequest true "Pattern payload"
// @Success 201 {object} response.Envelope
// @Router /redaction/patterns [post]
func (h *RedactionHandler) CreatePattern(c *gin.Context) {
	var req dto.CreatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid pattern payload"))
		return
	}
	pattern := &models.RedactionPattern{
		Name:          req.Name,
		Pattern:       req.Pattern,
		Replacement:   req.Replacement,
		IsRegex:       req.IsRegex,
		IsGlobal:      req.IsGlobal,
		CaseSensitive: req.CaseSensitive,
		Priority:      req.Priority,
		Enabled:       true,
	}
	if err := h.service.CreatePattern(c.Request.Context(), pattern); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pattern)
}

// CreateOverride godoc
// @Summary Override a pattern at one scope layer
// @Tags Redaction
// @Accept json
// @Produce json
// @Param payload body dto.CreateOverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Router /redaction/overrides [post]
func (h *RedactionHandler) CreateOverride(c *gin.Context) {
	var req dto.CreateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid override payload"))
		return
	}
	override := &models.RedactionOverride{
		PatternID:  req.PatternID,
		Scope:      req.Scope,
		ScopeValue: req.ScopeValue,
		Enabled:    req.Enabled,
		Priority:   req.Priority,
	}
	if err := h.service.CreateOverride(c.Request.Context(), override); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, override)
}

// Preview godoc
// @Summary Resolved pattern cascade for a document
// @Tags Redaction
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/redaction [get]
func (h *RedactionHandler) Preview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	patterns, cached, err := h.service.Resolve(c.Request.Context(), claims.OrganizationID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, dto.RedactionPreviewResponse{
		DocumentID: c.Param("id"),
		Patterns:   patterns,
	}, nil, middleware.ExtractMeta(c))
}

// Apply godoc
// @Summary Apply the cascade to one version and record the run
// @Tags Redaction
// @Produce json
// @Param id path string true "Document ID"
// @Param number path int true "Version number"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions/{number}/redact [post]
func (h *RedactionHandler) Apply(c *gin.Context) {
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
	redacted, run, err := h.service.Apply(c.Request.Context(), claims.OrganizationID, c.Param("id"), version.ID, string(version.Content), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RedactionResultResponse{Run: *run, Redacted: redacted}, nil)
}

// Runs godoc
// @Summary Past redaction runs for a document
// @Tags Redaction
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/redaction/runs [get]
func (h *RedactionHandler) Runs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.service.Runs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}
