package models

import "time"

// VersionStatus is tracked independently of the parent document's status.
type VersionStatus string

const (
	VersionStatusDraft      VersionStatus = "DRAFT"
	VersionStatusInReview   VersionStatus = "IN_REVIEW"
	VersionStatusApproved   VersionStatus = "APPROVED"
	VersionStatusRejected   VersionStatus = "REJECTED"
	VersionStatusSuperseded VersionStatus = "SUPERSEDED"
)

// DocumentVersion is an immutable snapshot of a document's content.
// Corrections never mutate a version; they create a new one.
type DocumentVersion struct {
	ID            string        `db:"id" json:"id"`
	DocumentID    string        `db:"document_id" json:"document_id"`
	VersionNumber int           `db:"version_number" json:"version_number"`
	Content       []byte        `db:"content" json:"content"`
	ContentHash   string        `db:"content_hash" json:"content_hash"`
	Status        VersionStatus `db:"status" json:"status"`
	AuthorID      string        `db:"author_id" json:"author_id"`
	ChangeSummary *string       `db:"change_summary" json:"change_summary,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// DiffOp identifies a single line-level difference.
type DiffOp string

const (
	DiffOpAdd    DiffOp = "ADD"
	DiffOpRemove DiffOp = "REMOVE"
)

// DiffEntry is one line-level change between two versions.
type DiffEntry struct {
	Op   DiffOp `json:"op"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// VersionDiff is a cached comparison between two distinct versions of the
// same document. Versions are immutable, so a diff never goes stale.
type VersionDiff struct {
	DocumentID     string      `json:"document_id"`
	BaseVersion    int         `json:"base_version"`
	CompareVersion int         `json:"compare_version"`
	Entries        []DiffEntry `json:"entries"`
	ComputedAt     time.Time   `json:"computed_at"`

	// Cached reports whether this diff was served from the cache. It is
	// surfaced through response metadata, not the body.
	Cached bool `json:"-"`
}
