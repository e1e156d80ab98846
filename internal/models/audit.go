package models

import "time"

// AuditAction constants represent state transitions to be logged.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionDocumentCreate    = "DOCUMENT_CREATE"
	AuditActionVersionCreate     = "VERSION_CREATE"
	AuditActionVersionSupersede  = "VERSION_SUPERSEDE"
	AuditActionLockAcquire       = "LOCK_ACQUIRE"
	AuditActionLockRelease       = "LOCK_RELEASE"
	AuditActionApprovalRequest   = "APPROVAL_REQUEST"
	AuditActionApprovalDecision  = "APPROVAL_DECISION"
	AuditActionVersionPromote    = "VERSION_PROMOTE"
	AuditActionRedactionRun      = "REDACTION_RUN"
	AuditActionRuleExecution     = "RULE_EXECUTION"
	AuditActionPackageTransition = "PACKAGE_TRANSITION"
	AuditActionAckReceived       = "ACK_RECEIVED"
)

// AuditLog represents an append-only audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit log queries.
type AuditFilter struct {
	Action     string
	Resource   string
	ResourceID string
	UserID     string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
