package dto

import (
	"encoding/json"

	"github.com/clinforge/regdoc-api/internal/models"
)

// CreateDocumentRequest payload for registering a controlled document.
type CreateDocumentRequest struct {
	Title   string              `json:"title" validate:"required,min=3"`
	Type    models.DocumentType `json:"type" validate:"required"`
	Subtype string              `json:"subtype" validate:"required"`
}

// CreateVersionRequest payload for appending a version under a held lock.
type CreateVersionRequest struct {
	Content       json.RawMessage `json:"content" validate:"required"`
	ChangeSummary string          `json:"changeSummary"`
}

// AcquireLockRequest payload for taking an exclusive edit hold.
type AcquireLockRequest struct {
	TTLSeconds int    `json:"ttlSeconds" validate:"omitempty,min=1,max=3600"`
	Reason     string `json:"reason"`
}

// DiffQuery names the two versions to compare.
type DiffQuery struct {
	Base    int `form:"base" validate:"required,min=1"`
	Compare int `form:"compare" validate:"required,min=1"`
}

// DocumentQuery mirrors supported document listing filters.
type DocumentQuery struct {
	Type    models.DocumentType     `form:"type"`
	Subtype string                  `form:"subtype"`
	Status  []models.DocumentStatus `form:"status"`
	Search  string                  `form:"search"`
	Limit   int                     `form:"limit"`
	Offset  int                     `form:"offset"`
}
