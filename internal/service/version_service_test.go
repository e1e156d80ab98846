package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type versionStoreStub struct {
	versions   map[string]*models.DocumentVersion
	nextNumber map[string]int
	superseded int64
}

func newVersionStoreStub() *versionStoreStub {
	return &versionStoreStub{
		versions:   make(map[string]*models.DocumentVersion),
		nextNumber: make(map[string]int),
	}
}

func (s *versionStoreStub) Create(ctx context.Context, version *models.DocumentVersion) error {
	s.nextNumber[version.DocumentID]++
	version.VersionNumber = s.nextNumber[version.DocumentID]
	if version.ID == "" {
		version.ID = fmt.Sprintf("ver-%s-%d", version.DocumentID, version.VersionNumber)
	}
	copied := *version
	s.versions[version.ID] = &copied
	return nil
}

func (s *versionStoreStub) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	if v, ok := s.versions[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *versionStoreStub) GetByNumber(ctx context.Context, docID string, number int) (*models.DocumentVersion, error) {
	for _, v := range s.versions {
		if v.DocumentID == docID && v.VersionNumber == number {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *versionStoreStub) Latest(ctx context.Context, docID string) (*models.DocumentVersion, error) {
	var latest *models.DocumentVersion
	for _, v := range s.versions {
		if v.DocumentID == docID && (latest == nil || v.VersionNumber > latest.VersionNumber) {
			latest = v
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (s *versionStoreStub) History(ctx context.Context, docID string) ([]models.DocumentVersion, error) {
	var result []models.DocumentVersion
	for _, v := range s.versions {
		if v.DocumentID == docID {
			result = append(result, *v)
		}
	}
	return result, nil
}

func (s *versionStoreStub) UpdateStatus(ctx context.Context, versionID string, from, to models.VersionStatus) error {
	v, ok := s.versions[versionID]
	if !ok || v.Status != from {
		return sql.ErrNoRows
	}
	v.Status = to
	return nil
}

func (s *versionStoreStub) SupersedePrior(ctx context.Context, docID, keepVersionID string) (int64, error) {
	var count int64
	for _, v := range s.versions {
		if v.DocumentID == docID && v.ID != keepVersionID && v.Status == models.VersionStatusApproved {
			v.Status = models.VersionStatusSuperseded
			count++
		}
	}
	s.superseded = count
	return count, nil
}

type docStoreStub struct {
	docs map[string]*models.Document
}

func newDocStoreStub() *docStoreStub {
	return &docStoreStub{docs: make(map[string]*models.Document)}
}

func (s *docStoreStub) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", len(s.docs)+1)
	}
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *docStoreStub) GetByID(ctx context.Context, orgID, id string) (*models.Document, error) {
	if doc, ok := s.docs[id]; ok && doc.OrganizationID == orgID {
		copied := *doc
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *docStoreStub) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	var result []models.Document
	for _, doc := range s.docs {
		if doc.OrganizationID == filter.OrganizationID {
			result = append(result, *doc)
		}
	}
	return result, nil
}

func (s *docStoreStub) SetCurrentVersion(ctx context.Context, docID, versionID string, status models.DocumentStatus) error {
	doc, ok := s.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.CurrentVersionID = &versionID
	doc.Status = status
	return nil
}

func (s *docStoreStub) UpdateStatus(ctx context.Context, docID string, status models.DocumentStatus) error {
	doc, ok := s.docs[docID]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Status = status
	return nil
}

type lockValidatorStub struct {
	err error
}

func (l *lockValidatorStub) Validate(ctx context.Context, docID, holderID string) (*models.Lock, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &models.Lock{DocumentID: docID, HolderID: holderID}, nil
}

const blockContent = `{"blocks":[{"name":"summary","section_code":"m2","block_type":"TEXT","body":"Initial text"}]}`

func seedDocument(t *testing.T, docs *docStoreStub) *models.Document {
	t.Helper()
	doc := &models.Document{
		OrganizationID: "org-1",
		Title:          "Clinical Study Report",
		Type:           models.DocumentTypeReport,
		Subtype:        "CSR",
		Status:         models.DocumentStatusDraft,
		CreatedBy:      "user-1",
	}
	require.NoError(t, docs.Create(context.Background(), doc))
	return doc
}

func TestVersionServiceCreateDocumentRetention(t *testing.T) {
	docs := newDocStoreStub()
	svc := NewVersionService(newVersionStoreStub(), docs, &lockValidatorStub{}, nil, &auditStub{}, nil)

	doc, err := svc.CreateDocument(context.Background(), "org-1", "CSR 101", models.DocumentTypeReport, "CSR", "user-1")
	require.NoError(t, err)
	require.NotNil(t, doc.ArchiveAt)
	require.NotNil(t, doc.PurgeAt)
	require.True(t, doc.PurgeAt.After(*doc.ArchiveAt))

	unknown, err := svc.CreateDocument(context.Background(), "org-1", "Misc", models.DocumentTypeCorrespond, "LETTER", "user-1")
	require.NoError(t, err)
	require.Nil(t, unknown.ArchiveAt)
}

func TestVersionServiceCreateVersionRequiresLock(t *testing.T) {
	docs := newDocStoreStub()
	doc := seedDocument(t, docs)
	locks := &lockValidatorStub{err: appErrors.ErrLockRequired}
	svc := NewVersionService(newVersionStoreStub(), docs, locks, nil, &auditStub{}, nil)

	_, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(blockContent), "user-1", "")
	require.Equal(t, appErrors.ErrLockRequired.Code, appErrors.FromError(err).Code)
}

func TestVersionServiceCreateVersionAssignsNumberAndHash(t *testing.T) {
	docs := newDocStoreStub()
	doc := seedDocument(t, docs)
	versions := newVersionStoreStub()
	svc := NewVersionService(versions, docs, &lockValidatorStub{}, nil, &auditStub{}, nil)

	first, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(blockContent), "user-1", "initial draft")
	require.NoError(t, err)
	require.Equal(t, 1, first.VersionNumber)
	require.Len(t, first.ContentHash, 64)
	require.Equal(t, models.VersionStatusDraft, first.Status)

	second, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(blockContent), "user-1", "")
	require.NoError(t, err)
	require.Equal(t, 2, second.VersionNumber)
	require.Equal(t, first.ContentHash, second.ContentHash)
}

func TestVersionServiceCreateVersionRejectsMalformedBlocks(t *testing.T) {
	docs := newDocStoreStub()
	doc := seedDocument(t, docs)
	svc := NewVersionService(newVersionStoreStub(), docs, &lockValidatorStub{}, nil, &auditStub{}, nil)

	cases := []string{
		`not json`,
		`{"blocks":[{"section_code":"m2","block_type":"TEXT"}]}`,
		`{"blocks":[{"name":"a","block_type":"TEXT"}]}`,
		`{"blocks":[{"name":"a","section_code":"m2","block_type":"TEXT"},{"name":"a","section_code":"m2","block_type":"TEXT"}]}`,
	}
	for _, content := range cases {
		_, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(content), "user-1", "")
		require.Error(t, err, content)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestVersionServiceOrgScoping(t *testing.T) {
	docs := newDocStoreStub()
	doc := seedDocument(t, docs)
	svc := NewVersionService(newVersionStoreStub(), docs, &lockValidatorStub{}, nil, &auditStub{}, nil)

	_, err := svc.GetDocument(context.Background(), "org-2", doc.ID)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestVersionServiceDiff(t *testing.T) {
	docs := newDocStoreStub()
	doc := seedDocument(t, docs)
	versions := newVersionStoreStub()
	svc := NewVersionService(versions, docs, &lockValidatorStub{}, nil, &auditStub{}, nil)

	base := `{"blocks":[{"name":"a","section_code":"m1","block_type":"TEXT","body":"one"}]}`
	compare := `{"blocks":[{"name":"a","section_code":"m1","block_type":"TEXT","body":"two"}]}`
	_, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(base), "user-1", "")
	require.NoError(t, err)
	_, err = svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(compare), "user-1", "")
	require.NoError(t, err)

	diff, err := svc.Diff(context.Background(), "org-1", doc.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, diff.Entries, 2)
	require.Equal(t, models.DiffOpRemove, diff.Entries[0].Op)
	require.Equal(t, models.DiffOpAdd, diff.Entries[1].Op)

	_, err = svc.Diff(context.Background(), "org-1", doc.ID, 1, 1)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestVersionServicePromoteSupersedesPrior(t *testing.T) {
	docs := newDocStoreStub()
	doc := seedDocument(t, docs)
	versions := newVersionStoreStub()
	svc := NewVersionService(versions, docs, &lockValidatorStub{}, nil, &auditStub{}, nil)

	old, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(blockContent), "user-1", "")
	require.NoError(t, err)
	versions.versions[old.ID].Status = models.VersionStatusApproved

	current, err := svc.CreateVersion(context.Background(), "org-1", doc.ID, []byte(blockContent), "user-1", "")
	require.NoError(t, err)

	require.NoError(t, svc.Promote(context.Background(), doc.ID, current.ID, "user-1"))
	require.Equal(t, models.VersionStatusSuperseded, versions.versions[old.ID].Status)
	require.Equal(t, models.DocumentStatusApproved, docs.docs[doc.ID].Status)
	require.Equal(t, current.ID, *docs.docs[doc.ID].CurrentVersionID)
}

func TestComputeLineDiffTailChanges(t *testing.T) {
	entries := computeLineDiff("a\nb\nc", "a\nb\nc\nd")
	require.Len(t, entries, 1)
	require.Equal(t, models.DiffOpAdd, entries[0].Op)
	require.Equal(t, 4, entries[0].Line)
	require.Equal(t, "d", entries[0].Text)
}
