package models

import "time"

// RedactionScope orders override layers from least to most specific.
type RedactionScope string

const (
	RedactionScopeGlobal  RedactionScope = "GLOBAL"
	RedactionScopeTenant  RedactionScope = "TENANT"
	RedactionScopeType    RedactionScope = "TYPE"
	RedactionScopeSubtype RedactionScope = "SUBTYPE"
)

// RedactionPattern is a global match/replace rule applied before external
// disclosure. Scope overrides may disable it or change its priority.
type RedactionPattern struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Pattern       string    `db:"pattern" json:"pattern"`
	Replacement   string    `db:"replacement" json:"replacement"`
	IsRegex       bool      `db:"is_regex" json:"is_regex"`
	IsGlobal      bool      `db:"is_global" json:"is_global"`
	CaseSensitive bool      `db:"case_sensitive" json:"case_sensitive"`
	Priority      int       `db:"priority" json:"priority"`
	Enabled       bool      `db:"enabled" json:"enabled"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RedactionOverride adjusts one pattern at one scope layer. ScopeValue holds
// the tenant id, document type, or subtype the override binds to.
type RedactionOverride struct {
	ID         string         `db:"id" json:"id"`
	PatternID  string         `db:"pattern_id" json:"pattern_id"`
	Scope      RedactionScope `db:"scope" json:"scope"`
	ScopeValue string         `db:"scope_value" json:"scope_value"`
	Enabled    *bool          `db:"enabled" json:"enabled,omitempty"`
	Priority   *int           `db:"priority" json:"priority,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ResolvedPattern is a pattern after the scope cascade, carrying the
// effective priority that orders application.
type ResolvedPattern struct {
	RedactionPattern
	ResolvedPriority int            `json:"resolved_priority"`
	ResolvedScope    RedactionScope `json:"resolved_scope"`
}

// RedactionRun is the persisted audit record of one export-time application.
type RedactionRun struct {
	ID              string    `db:"id" json:"id"`
	DocumentID      string    `db:"document_id" json:"document_id"`
	VersionID       string    `db:"version_id" json:"version_id"`
	PatternsApplied int       `db:"patterns_applied" json:"patterns_applied"`
	MatchesFound    int       `db:"matches_found" json:"matches_found"`
	ElapsedMs       int64     `db:"elapsed_ms" json:"elapsed_ms"`
	RanBy           string    `db:"ran_by" json:"ran_by"`
	RanAt           time.Time `db:"ran_at" json:"ran_at"`
}
