package models

import "time"

// DocumentStatus tracks the lifecycle of a controlled document.
type DocumentStatus string

const (
	DocumentStatusDraft      DocumentStatus = "DRAFT"
	DocumentStatusInReview   DocumentStatus = "IN_REVIEW"
	DocumentStatusApproved   DocumentStatus = "APPROVED"
	DocumentStatusFinal      DocumentStatus = "FINAL"
	DocumentStatusArchived   DocumentStatus = "ARCHIVED"
	DocumentStatusSuperseded DocumentStatus = "SUPERSEDED"
)

// DocumentType classifies a document for rule applicability and retention.
type DocumentType string

const (
	DocumentTypeProtocol      DocumentType = "PROTOCOL"
	DocumentTypeReport        DocumentType = "REPORT"
	DocumentTypeLabel         DocumentType = "LABEL"
	DocumentTypeCorrespond    DocumentType = "CORRESPONDENCE"
	DocumentTypeSpecification DocumentType = "SPECIFICATION"
)

// Document is a controlled document owned by an organization.
type Document struct {
	ID               string         `db:"id" json:"id"`
	OrganizationID   string         `db:"organization_id" json:"organization_id"`
	Title            string         `db:"title" json:"title"`
	Type             DocumentType   `db:"type" json:"type"`
	Subtype          string         `db:"subtype" json:"subtype"`
	Status           DocumentStatus `db:"status" json:"status"`
	CurrentVersionID *string        `db:"current_version_id" json:"current_version_id,omitempty"`
	CreatedBy        string         `db:"created_by" json:"created_by"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
	ArchiveAt        *time.Time     `db:"archive_at" json:"archive_at,omitempty"`
	PurgeAt          *time.Time     `db:"purge_at" json:"purge_at,omitempty"`
}

// DocumentFilter constrains document listing queries.
type DocumentFilter struct {
	OrganizationID string
	Type           DocumentType
	Subtype        string
	Status         []DocumentStatus
	Search         string
	Limit          int
	Offset         int
}

// RetentionPolicy defines archive/purge offsets for a document subtype.
type RetentionPolicy struct {
	Subtype      string        `db:"subtype" json:"subtype"`
	ArchiveAfter time.Duration `json:"archive_after"`
	PurgeAfter   time.Duration `json:"purge_after"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
