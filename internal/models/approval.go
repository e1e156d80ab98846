package models

import "time"

// ApprovalStatus captures the decision state of a single required approver.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Approval is one required sign-off on a document version. The sequence
// index orders the chain for display; decisions are accepted in any order.
type Approval struct {
	ID         string         `db:"id" json:"id"`
	VersionID  string         `db:"version_id" json:"version_id"`
	ApproverID string         `db:"approver_id" json:"approver_id"`
	Sequence   int            `db:"sequence" json:"sequence"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	DecidedAt  *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// SignatureStatus tracks verification state of a digital signature.
type SignatureStatus string

const (
	SignatureStatusValid      SignatureStatus = "VALID"
	SignatureStatusInvalid    SignatureStatus = "INVALID"
	SignatureStatusUnverified SignatureStatus = "UNVERIFIED"
)

// DigitalSignature binds a signer and a content hash to an entity requiring
// 21 CFR Part 11-style attestation (an approval decision or a submission).
type DigitalSignature struct {
	ID            string          `db:"id" json:"id"`
	EntityType    string          `db:"entity_type" json:"entity_type"`
	EntityID      string          `db:"entity_id" json:"entity_id"`
	SignerID      string          `db:"signer_id" json:"signer_id"`
	ContentHash   string          `db:"content_hash" json:"content_hash"`
	SigningMethod string          `db:"signing_method" json:"signing_method"`
	Signature     string          `db:"signature" json:"signature"`
	Status        SignatureStatus `db:"status" json:"status"`
	SignedAt      time.Time       `db:"signed_at" json:"signed_at"`
}

// Signature entity types.
const (
	SignatureEntityApproval   = "APPROVAL"
	SignatureEntitySubmission = "SUBMISSION_PACKAGE"
)
