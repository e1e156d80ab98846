package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
	"github.com/clinforge/regdoc-api/internal/repository"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type versionStore interface {
	Create(ctx context.Context, version *models.DocumentVersion) error
	GetByID(ctx context.Context, id string) (*models.DocumentVersion, error)
	GetByNumber(ctx context.Context, docID string, number int) (*models.DocumentVersion, error)
	History(ctx context.Context, docID string) ([]models.DocumentVersion, error)
	UpdateStatus(ctx context.Context, versionID string, from, to models.VersionStatus) error
	SupersedePrior(ctx context.Context, docID, keepVersionID string) (int64, error)
}

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, orgID, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	SetCurrentVersion(ctx context.Context, docID, versionID string, status models.DocumentStatus) error
	UpdateStatus(ctx context.Context, docID string, status models.DocumentStatus) error
}

type lockValidator interface {
	Validate(ctx context.Context, docID, holderID string) (*models.Lock, error)
}

// VersionService is the append-only version store. Versions never mutate
// after creation; corrections create a new version.
type VersionService struct {
	versions versionStore
	docs     documentStore
	locks    lockValidator
	cache    *CacheService
	audit    auditLogger
	logger   *zap.Logger
}

// NewVersionService constructs the version store service.
func NewVersionService(versions versionStore, docs documentStore, locks lockValidator, cache *CacheService, audit auditLogger, logger *zap.Logger) *VersionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionService{
		versions: versions,
		docs:     docs,
		locks:    locks,
		cache:    cache,
		audit:    audit,
		logger:   logger,
	}
}

// retentionBySubtype maps known subtypes to archive/purge offsets. Unknown
// subtypes get no computed dates.
var retentionBySubtype = map[string]struct {
	archive time.Duration
	purge   time.Duration
}{
	"CSR": {archive: 2 * 365 * 24 * time.Hour, purge: 25 * 365 * 24 * time.Hour},
	"IB":  {archive: 3 * 365 * 24 * time.Hour, purge: 15 * 365 * 24 * time.Hour},
	"SOP": {archive: 1 * 365 * 24 * time.Hour, purge: 10 * 365 * 24 * time.Hour},
	"SPC": {archive: 5 * 365 * 24 * time.Hour, purge: 30 * 365 * 24 * time.Hour},
}

// CreateDocument registers a controlled document with retention dates
// computed from the subtype policy.
func (s *VersionService) CreateDocument(ctx context.Context, orgID, title string, docType models.DocumentType, subtype, createdBy string) (*models.Document, error) {
	doc := &models.Document{
		OrganizationID: orgID,
		Title:          strings.TrimSpace(title),
		Type:           docType,
		Subtype:        subtype,
		Status:         models.DocumentStatusDraft,
		CreatedBy:      createdBy,
	}
	if policy, ok := retentionBySubtype[subtype]; ok {
		now := time.Now().UTC()
		archiveAt := now.Add(policy.archive)
		purgeAt := now.Add(policy.purge)
		doc.ArchiveAt = &archiveAt
		doc.PurgeAt = &purgeAt
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}
	s.emitAudit(ctx, createdBy, models.AuditActionDocumentCreate, doc.ID, doc)
	return doc, nil
}

// GetDocument returns a document scoped to the caller's organization.
func (s *VersionService) GetDocument(ctx context.Context, orgID, docID string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, orgID, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// ListDocuments returns documents for the caller's organization.
func (s *VersionService) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	docs, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// CreateVersion appends a version under a held lock. The caller must own a
// live lock on the document; the version number is assigned monotonically.
func (s *VersionService) CreateVersion(ctx context.Context, orgID, docID string, content []byte, authorID, changeSummary string) (*models.DocumentVersion, error) {
	if _, err := s.docs.GetByID(ctx, orgID, docID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if _, err := s.locks.Validate(ctx, docID, authorID); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "version content is required")
	}
	if err := validateContentBlocks(content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed content blocks")
	}

	hash := sha256.Sum256(content)
	version := &models.DocumentVersion{
		DocumentID:  docID,
		Content:     append([]byte(nil), content...),
		ContentHash: hex.EncodeToString(hash[:]),
		Status:      models.VersionStatusDraft,
		AuthorID:    authorID,
	}
	if changeSummary != "" {
		version.ChangeSummary = &changeSummary
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create version")
	}
	s.emitAudit(ctx, authorID, models.AuditActionVersionCreate, version.ID, version)
	return version, nil
}

// GetVersion returns one version of a document by number.
func (s *VersionService) GetVersion(ctx context.Context, orgID, docID string, number int) (*models.DocumentVersion, error) {
	if _, err := s.GetDocument(ctx, orgID, docID); err != nil {
		return nil, err
	}
	version, err := s.versions.GetByNumber(ctx, docID, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("version %d not found", number))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	return version, nil
}

// History returns every version of a document, newest first. Superseded
// versions stay retrievable for audit.
func (s *VersionService) History(ctx context.Context, orgID, docID string) ([]models.DocumentVersion, error) {
	if _, err := s.GetDocument(ctx, orgID, docID); err != nil {
		return nil, err
	}
	versions, err := s.versions.History(ctx, docID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return versions, nil
}

// Diff compares two distinct versions. Computed lazily on first request and
// cached without expiry; versions are immutable so the entry never goes
// stale.
func (s *VersionService) Diff(ctx context.Context, orgID, docID string, base, compare int) (*models.VersionDiff, error) {
	if base == compare {
		return nil, appErrors.Clone(appErrors.ErrValidation, "base and compare versions must differ")
	}
	if _, err := s.GetDocument(ctx, orgID, docID); err != nil {
		return nil, err
	}

	key := repository.DiffKey(docID, base, compare)
	var cached models.VersionDiff
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		cached.Cached = true
		return &cached, nil
	}

	baseVersion, err := s.GetVersion(ctx, orgID, docID, base)
	if err != nil {
		return nil, err
	}
	compareVersion, err := s.GetVersion(ctx, orgID, docID, compare)
	if err != nil {
		return nil, err
	}

	diff := &models.VersionDiff{
		DocumentID:     docID,
		BaseVersion:    base,
		CompareVersion: compare,
		Entries:        computeLineDiff(string(baseVersion.Content), string(compareVersion.Content)),
		ComputedAt:     time.Now().UTC(),
	}
	if err := s.cache.Set(ctx, key, diff, 0); err != nil {
		s.logger.Sugar().Warnw("failed to cache diff", "key", key, "error", err)
	}
	return diff, nil
}

// Promote flips an approved version to the document's current version and
// supersedes the prior current. Called by the approval workflow after every
// required approver has signed.
func (s *VersionService) Promote(ctx context.Context, docID, versionID, actorID string) error {
	if err := s.docs.SetCurrentVersion(ctx, docID, versionID, models.DocumentStatusApproved); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move current pointer")
	}
	superseded, err := s.versions.SupersedePrior(ctx, docID, versionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede prior versions")
	}
	if superseded > 0 {
		s.emitAudit(ctx, actorID, models.AuditActionVersionSupersede, docID, map[string]interface{}{
			"kept":       versionID,
			"superseded": superseded,
		})
	}
	s.emitAudit(ctx, actorID, models.AuditActionVersionPromote, versionID, nil)
	return nil
}

func (s *VersionService) emitAudit(ctx context.Context, userID, action, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	var values []byte
	if payload != nil {
		values, _ = json.Marshal(payload)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "document_version",
		ResourceID: &resourceID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}

// validateContentBlocks checks that the payload is a block map and every
// block carries the fields its type requires. Malformed harvested content is
// caught here rather than at export time.
func validateContentBlocks(content []byte) error {
	var payload struct {
		Blocks []models.ContentBlock `json:"blocks"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return fmt.Errorf("content must be a block document: %w", err)
	}
	seen := make(map[string]struct{}, len(payload.Blocks))
	for i, block := range payload.Blocks {
		if block.Name == "" {
			return fmt.Errorf("block %d: name is required", i)
		}
		if block.SectionCode == "" {
			return fmt.Errorf("block %q: section code is required", block.Name)
		}
		if block.BlockType == "" {
			return fmt.Errorf("block %q: block type is required", block.Name)
		}
		key := block.SectionCode + "/" + block.Name
		if _, dup := seen[key]; dup {
			return fmt.Errorf("block %q: duplicate within section %s", block.Name, block.SectionCode)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// computeLineDiff produces line-level ADD/REMOVE entries via an LCS walk.
// Line numbers are 1-based positions in the respective source.
func computeLineDiff(base, compare string) []models.DiffEntry {
	baseLines := strings.Split(base, "\n")
	compareLines := strings.Split(compare, "\n")

	n, m := len(baseLines), len(compareLines)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if baseLines[i] == compareLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	entries := make([]models.DiffEntry, 0)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case baseLines[i] == compareLines[j]:
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			entries = append(entries, models.DiffEntry{Op: models.DiffOpRemove, Line: i + 1, Text: baseLines[i]})
			i++
		default:
			entries = append(entries, models.DiffEntry{Op: models.DiffOpAdd, Line: j + 1, Text: compareLines[j]})
			j++
		}
	}
	for ; i < n; i++ {
		entries = append(entries, models.DiffEntry{Op: models.DiffOpRemove, Line: i + 1, Text: baseLines[i]})
	}
	for ; j < m; j++ {
		entries = append(entries, models.DiffEntry{Op: models.DiffOpAdd, Line: j + 1, Text: compareLines[j]})
	}
	return entries
}
