package dto

import "github.com/clinforge/regdoc-api/internal/models"

// CreateHarvestRuleRequest registers a condition/action rule for a section.
type CreateHarvestRuleRequest struct {
	SectionCode string `json:"sectionCode" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Condition   string `json:"condition" validate:"required"`
	Action      string `json:"action" validate:"required"`
	Priority    int    `json:"priority" validate:"min=0"`
	Enabled     bool   `json:"enabled"`
}

// EvaluateRequest triggers rule evaluation for one document section.
type EvaluateRequest struct {
	SectionCode string `json:"sectionCode" validate:"required"`
}

// EvaluateResponse summarises one evaluation pass.
type EvaluateResponse struct {
	DocumentID  string                       `json:"document_id"`
	SectionCode string                       `json:"section_code"`
	Records     []models.RuleExecutionRecord `json:"records"`
}
