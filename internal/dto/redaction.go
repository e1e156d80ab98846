package dto

import "github.com/clinforge/regdoc-api/internal/models"

// CreatePatternRequest registers a global redaction pattern.
type CreatePatternRequest struct {
	Name          string `json:"name" validate:"required"`
	Pattern       string `json:"pattern" validate:"required"`
	Replacement   string `json:"replacement"`
	IsRegex       bool   `json:"isRegex"`
	IsGlobal      bool   `json:"isGlobal"`
	CaseSensitive bool   `json:"caseSensitive"`
	Priority      int    `json:"priority" validate:"min=0"`
}

// CreateOverrideRequest adjusts a pattern at one scope layer.
type CreateOverrideRequest struct {
	PatternID  string                `json:"patternId" validate:"required"`
	Scope      models.RedactionScope `json:"scope" validate:"required,oneof=TENANT TYPE SUBTYPE"`
	ScopeValue string                `json:"scopeValue" validate:"required"`
	Enabled    *bool                 `json:"enabled"`
	Priority   *int                  `json:"priority"`
}

// RedactionPreviewResponse returns the resolved cascade for a document.
type RedactionPreviewResponse struct {
	DocumentID string                   `json:"document_id"`
	Patterns   []models.ResolvedPattern `json:"patterns"`
}

// RedactionResultResponse reports one export-time application.
type RedactionResultResponse struct {
	Run      models.RedactionRun `json:"run"`
	Redacted string              `json:"redacted"`
}
