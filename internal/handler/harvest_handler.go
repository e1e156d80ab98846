package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/dto"
	"github.com/clinforge/regdoc-api/internal/models"
	"github.com/clinforge/regdoc-api/internal/service"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/response"
)

type harvestService interface {
	CreateRule(ctx context.Context, rule *models.HarvestRule) error
	Evaluate(ctx context.Context, orgID, docID, sectionCode, actorID string) (*service.HarvestResult, error)
	Executions(ctx context.Context, docID string, limit int) ([]models.RuleExecutionRecord, error)
}

// HarvestHandler exposes the section rule engine.
type HarvestHandler struct {
	service harvestService
}

// NewHarvestHandler constructs the handler.
func NewHarvestHandler(service harvestService) *HarvestHandler {
	return &HarvestHandler{service: service}
}

// CreateRule godoc
// @Summary Register a harvest rule
// @Tags Harvest
// @Accept json
// @Produce json
// @Param payload body dto.CreateHarvestRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /harvest/rules [post]
func (h *HarvestHandler) CreateRule(c *gin.Context) {
	var req dto.CreateHarvestRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rule payload"))
		return
	}
	rule := &models.HarvestRule{
		SectionCode: req.SectionCode,
		Name:        req.Name,
		Condition:   req.Condition,
		Action:      req.Action,
		Priority:    req.Priority,
		Enabled:     req.Enabled,
	}
	if err := h.service.CreateRule(c.Request.Context(), rule); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// Evaluate godoc
// @Summary Run the section rules for one document
// @Tags Harvest
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.EvaluateRequest true "Section"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/harvest [post]
func (h *HarvestHandler) Evaluate(c *gin.Context) {
	var req dto.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid evaluate payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Evaluate(c.Request.Context(), claims.OrganizationID, c.Param("id"), req.SectionCode, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Executions godoc
// @Summary Past rule executions for a document
// @Tags Harvest
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/harvest/executions [get]
func (h *HarvestHandler) Executions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.service.Executions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
