package dto

import (
	"encoding/json"
	"time"

	"github.com/clinforge/regdoc-api/internal/models"
)

// CreatePackageRequest opens a submission package for an approved document.
type CreatePackageRequest struct {
	DocumentID string `json:"documentId" validate:"required"`
	Format     string `json:"format" validate:"required,oneof=eCTD NeeS"`
}

// AckPayload is the structured shape extracted from an opaque gateway
// acknowledgment payload.
type AckPayload struct {
	AckType   string    `json:"ack_type"`
	AckID     string    `json:"ack_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// GatewayEventRequest is an inbound acknowledgment delivery.
type GatewayEventRequest struct {
	TrackingID string          `json:"trackingId" validate:"required"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

// PackageStatusResponse reports the package with its acks and validation.
type PackageStatusResponse struct {
	Package    models.SubmissionPackage `json:"package"`
	Acks       []models.Acknowledgment  `json:"acks"`
	Validation *models.ValidationReport `json:"validation,omitempty"`
}
