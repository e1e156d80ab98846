package models

import "time"

// PackageState is the submission gateway state machine position. The state
// only ever moves forward; REJECTED is terminal.
type PackageState string

const (
	PackageStatePreparing    PackageState = "PREPARING"
	PackageStateValidating   PackageState = "VALIDATING"
	PackageStateSubmitted    PackageState = "SUBMITTED"
	PackageStateAck1Received PackageState = "ACK1_RECEIVED"
	PackageStateAck2Received PackageState = "ACK2_RECEIVED"
	PackageStateAck3Received PackageState = "ACK3_RECEIVED"
	PackageStateRejected     PackageState = "REJECTED"
)

// StateRank orders gateway states for monotonic advancement. Rejected is
// outside the ordering; it is handled as an absorbing state.
func StateRank(s PackageState) int {
	switch s {
	case PackageStatePreparing:
		return 0
	case PackageStateValidating:
		return 1
	case PackageStateSubmitted:
		return 2
	case PackageStateAck1Received:
		return 3
	case PackageStateAck2Received:
		return 4
	case PackageStateAck3Received:
		return 5
	default:
		return -1
	}
}

// AckStageState maps an acknowledgment stage to its package state.
func AckStageState(stage int) (PackageState, bool) {
	switch stage {
	case 1:
		return PackageStateAck1Received, true
	case 2:
		return PackageStateAck2Received, true
	case 3:
		return PackageStateAck3Received, true
	default:
		return "", false
	}
}

// SubmissionPackage references an approved document headed to the external
// regulatory gateway.
type SubmissionPackage struct {
	ID               string       `db:"id" json:"id"`
	OrganizationID   string       `db:"organization_id" json:"organization_id"`
	DocumentID       string       `db:"document_id" json:"document_id"`
	VersionID        string       `db:"version_id" json:"version_id"`
	TrackingID       *string      `db:"tracking_id" json:"tracking_id,omitempty"`
	Format           string       `db:"format" json:"format"`
	State            PackageState `db:"state" json:"state"`
	ValidationStatus *string      `db:"validation_status" json:"validation_status,omitempty"`
	BundlePath       *string      `db:"bundle_path" json:"bundle_path,omitempty"`
	Flagged          bool         `db:"flagged" json:"flagged"`
	CreatedBy        string       `db:"created_by" json:"created_by"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	SubmittedAt      *time.Time   `db:"submitted_at" json:"submitted_at,omitempty"`
}

// AckStatus is the positive/negative status of an acknowledgment.
type AckStatus string

const (
	AckStatusAccepted AckStatus = "ACCEPTED"
	AckStatusWarning  AckStatus = "WARNING"
	AckStatusRejected AckStatus = "REJECTED"
)

// Acknowledgment is one staged confirmation from the external gateway.
// External gateways do not guarantee delivery order.
type Acknowledgment struct {
	ID         string    `db:"id" json:"id"`
	PackageID  string    `db:"package_id" json:"package_id"`
	Stage      int       `db:"stage" json:"stage"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Status     AckStatus `db:"status" json:"status"`
	RawPayload []byte    `db:"raw_payload" json:"raw_payload"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
}

// Validation finding severities. Version content is immutable, so a FATAL
// finding can never clear on revalidation and rejects the package outright.
const (
	FindingSeverityFatal   = "FATAL"
	FindingSeverityError   = "ERROR"
	FindingSeverityWarning = "WARNING"
)

// ValidationFinding is one structured issue from a validation run.
type ValidationFinding struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

// ValidationReport records one validation run over a package. Warnings do
// not block submission; errors do.
type ValidationReport struct {
	ID           string    `db:"id" json:"id"`
	PackageID    string    `db:"package_id" json:"package_id"`
	ErrorCount   int       `db:"error_count" json:"error_count"`
	WarningCount int       `db:"warning_count" json:"warning_count"`
	Findings     []byte    `db:"findings" json:"findings"`
	RanAt        time.Time `db:"ran_at" json:"ran_at"`
}

// GatewayEvent is an inbound acknowledgment payload awaiting ingestion.
// Failed events are marked and retried, not dropped.
type GatewayEvent struct {
	ID          string     `db:"id" json:"id"`
	TrackingID  string     `db:"tracking_id" json:"tracking_id"`
	Payload     []byte     `db:"payload" json:"payload"`
	Processed   bool       `db:"processed" json:"processed"`
	Attempts    int        `db:"attempts" json:"attempts"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
	ReceivedAt  time.Time  `db:"received_at" json:"received_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}
