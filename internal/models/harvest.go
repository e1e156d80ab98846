package models

import "time"

// HarvestRule auto-populates a document section from source data. The
// condition is a small boolean expression over section state; the action
// pulls a named content block from a source-document type.
type HarvestRule struct {
	ID          string    `db:"id" json:"id"`
	SectionCode string    `db:"section_code" json:"section_code"`
	Name        string    `db:"name" json:"name"`
	Condition   string    `db:"condition" json:"condition"`
	Action      string    `db:"action" json:"action"`
	Priority    int       `db:"priority" json:"priority"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RuleExecutionStatus is the outcome of a single rule evaluation.
type RuleExecutionStatus string

const (
	RuleExecutionSuccess RuleExecutionStatus = "SUCCESS"
	RuleExecutionSkipped RuleExecutionStatus = "SKIPPED"
	RuleExecutionFailed  RuleExecutionStatus = "FAILED"
)

// RuleExecutionRecord is the append-only outcome of one HarvestRule
// evaluation, supporting idempotence checks and debugging.
type RuleExecutionRecord struct {
	ID            string              `db:"id" json:"id"`
	RuleID        string              `db:"rule_id" json:"rule_id"`
	DocumentID    string              `db:"document_id" json:"document_id"`
	SectionCode   string              `db:"section_code" json:"section_code"`
	Status        RuleExecutionStatus `db:"status" json:"status"`
	BlocksCreated int                 `db:"blocks_created" json:"blocks_created"`
	Detail        *string             `db:"detail" json:"detail,omitempty"`
	ExecutedAt    time.Time           `db:"executed_at" json:"executed_at"`
}

// ContentBlock is one named unit of section content inside a version's
// content payload. Blocks are validated against their type at write time.
type ContentBlock struct {
	Name        string `json:"name"`
	BlockType   string `json:"block_type"`
	SectionCode string `json:"section_code"`
	Body        string `json:"body"`
	SourceType  string `json:"source_type,omitempty"`
}

// SectionState is the view of a section the rule engine evaluates against.
type SectionState struct {
	DocumentID  string
	SectionCode string
	Present     bool
	Blocks      map[string]ContentBlock
}

// Exists reports whether the section is present in the version content.
func (s SectionState) Exists() bool { return s.Present }

// HasBlock reports whether a named block is present in the section.
func (s SectionState) HasBlock(name string) bool {
	_, ok := s.Blocks[name]
	return ok
}
