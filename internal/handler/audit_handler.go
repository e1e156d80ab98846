package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/response"
)

type auditQueryService interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
	ExportCSV(ctx context.Context, filter models.AuditFilter) ([]byte, error)
}

// AuditHandler exposes the compliance trail.
type AuditHandler struct {
	service auditQueryService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditQueryService) *AuditHandler {
	return &AuditHandler{service: service}
}

func auditFilterFromQuery(c *gin.Context) models.AuditFilter {
	filter := models.AuditFilter{
		Action:     strings.ToUpper(strings.TrimSpace(c.Query("action"))),
		Resource:   strings.TrimSpace(c.Query("resource")),
		ResourceID: strings.TrimSpace(c.Query("resourceId")),
		UserID:     strings.TrimSpace(c.Query("userId")),
	}
	if raw := c.Query("from"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &ts
		}
	}
	if raw := c.Query("to"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &ts
		}
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return filter
}

// List godoc
// @Summary Query the audit trail
// @Tags Audit
// @Produce json
// @Param action query string false "Action"
// @Param resource query string false "Resource"
// @Param resourceId query string false "Resource ID"
// @Param userId query string false "User ID"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	logs, err := h.service.List(c.Request.Context(), auditFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Export godoc
// @Summary Export matching audit records as CSV
// @Tags Audit
// @Produce text/csv
// @Success 200 "csv"
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	data, err := h.service.ExportCSV(c.Request.Context(), auditFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(data) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no audit records matched"))
		return
	}
	c.Header("Content-Disposition", "attachment; filename=audit-trail.csv")
	c.Data(http.StatusOK, "text/csv", data)
}
