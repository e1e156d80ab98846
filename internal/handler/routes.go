package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clinforge/regdoc-api/internal/middleware"
	"github.com/clinforge/regdoc-api/internal/models"
	"github.com/clinforge/regdoc-api/internal/repository"
	"github.com/clinforge/regdoc-api/internal/service"
)

// RouteDeps carries the handlers and cross-cutting services the HTTP
// surface needs.
type RouteDeps struct {
	AuthService *service.AuthService
	AuditRepo   *repository.AuditRepository

	Auth        *AuthHandler
	Documents   *DocumentHandler
	Approvals   *ApprovalHandler
	Redaction   *RedactionHandler
	Harvest     *HarvestHandler
	Submissions *SubmissionHandler
	Audit       *AuditHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts every endpoint under the given group. The group is
// expected to carry requestid, logging, CORS and metrics middleware already.
func RegisterRoutes(api *gin.RouterGroup, d RouteDeps) {
	api.POST("/auth/login", d.Auth.Login)
	api.POST("/auth/refresh", d.Auth.Refresh)

	// Gateway webhook and signed bundle downloads authenticate out of band
	// (shared-secret callbacks and HMAC tokens respectively).
	api.POST("/gateway/events", d.Submissions.GatewayEvent)
	api.GET("/submissions/bundles/download",
		middleware.Audit(d.AuditRepo, "BUNDLE_DOWNLOAD", "submission_package"),
		d.Submissions.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(d.AuthService))

	authed.GET("/auth/me", d.Auth.Me)

	docs := authed.Group("/documents")
	{
		docs.GET("", d.Documents.List)
		docs.GET("/:id", d.Documents.Get)
		docs.GET("/:id/versions/:number", d.Documents.GetVersion)
		docs.GET("/:id/history", d.Documents.History)
		docs.GET("/:id/diff", d.Documents.Diff)
		docs.GET("/:id/redaction", d.Redaction.Preview)
		docs.GET("/:id/redaction/runs", d.Redaction.Runs)
		docs.GET("/:id/harvest/executions", d.Harvest.Executions)

		write := docs.Group("")
		write.Use(middleware.RequireRoles(models.RoleAuthor, models.RoleRegulatory, models.RoleQualityAdmin))
		{
			write.POST("", d.Documents.Create)
			write.POST("/:id/versions", d.Documents.CreateVersion)
			write.POST("/:id/lock", d.Documents.AcquireLock)
			write.DELETE("/:id/lock", d.Documents.ReleaseLock)
			write.POST("/:id/harvest", d.Harvest.Evaluate)
		}

		redact := docs.Group("")
		redact.Use(middleware.RequireRoles(models.RoleRegulatory, models.RoleQualityAdmin))
		redact.POST("/:id/versions/:number/redact", d.Redaction.Apply)
	}

	versions := authed.Group("/versions")
	{
		versions.GET("/:versionId/approvals", d.Approvals.Chain)
		versions.GET("/:versionId/signatures", d.Approvals.Signatures)
		versions.POST("/:versionId/approvals",
			middleware.RequireRoles(models.RoleRegulatory, models.RoleQualityAdmin),
			d.Approvals.Request)
	}

	authed.POST("/approvals/:id/decision",
		middleware.RequireRoles(models.RoleReviewer, models.RoleQualityAdmin),
		d.Approvals.Decide)

	redaction := authed.Group("/redaction")
	redaction.Use(middleware.RequireRoles(models.RoleQualityAdmin))
	{
		redaction.POST("/patterns", d.Redaction.CreatePattern)
		redaction.POST("/overrides", d.Redaction.CreateOverride)
	}

	authed.POST("/harvest/rules",
		middleware.RequireRoles(models.RoleQualityAdmin),
		d.Harvest.CreateRule)

	submissions := authed.Group("/submissions")
	submissions.Use(middleware.RequireRoles(models.RoleRegulatory, models.RoleQualityAdmin))
	{
		submissions.POST("", d.Submissions.Create)
		submissions.POST("/:id/validate", d.Submissions.Validate)
		submissions.POST("/:id/submit", d.Submissions.Submit)
		submissions.GET("/:id", d.Submissions.Status)
		submissions.GET("/:id/bundle-url", d.Submissions.BundleURL)
	}

	audit := authed.Group("/audit")
	audit.Use(middleware.RequireRoles(models.RoleQualityAdmin))
	{
		audit.GET("", d.Audit.List)
		audit.GET("/export",
			middleware.Audit(d.AuditRepo, "AUDIT_EXPORT", "audit_log"),
			d.Audit.Export)
	}

	authed.GET("/metrics/summary",
		middleware.RequireRoles(models.RoleQualityAdmin),
		d.Metrics.Snapshot)
}
