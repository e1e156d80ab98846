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

type redactionStoreStub struct {
	patterns  []models.RedactionPattern
	overrides []models.RedactionOverride
	runs      []models.RedactionRun
}

func (s *redactionStoreStub) CreatePattern(ctx context.Context, p *models.RedactionPattern) error {
	if p.ID == "" {
		p.ID = fmt.Sprintf("pat-%d", len(s.patterns)+1)
	}
	s.patterns = append(s.patterns, *p)
	return nil
}

func (s *redactionStoreStub) ListPatterns(ctx context.Context) ([]models.RedactionPattern, error) {
	return append([]models.RedactionPattern(nil), s.patterns...), nil
}

func (s *redactionStoreStub) CreateOverride(ctx context.Context, o *models.RedactionOverride) error {
	if o.ID == "" {
		o.ID = fmt.Sprintf("ovr-%d", len(s.overrides)+1)
	}
	s.overrides = append(s.overrides, *o)
	return nil
}

func (s *redactionStoreStub) ListOverrides(ctx context.Context, scopes map[models.RedactionScope]string) ([]models.RedactionOverride, error) {
	var result []models.RedactionOverride
	for _, o := range s.overrides {
		if value, ok := scopes[o.Scope]; ok && o.ScopeValue == value {
			result = append(result, o)
		}
	}
	return result, nil
}

func (s *redactionStoreStub) CreateRun(ctx context.Context, run *models.RedactionRun) error {
	run.ID = fmt.Sprintf("run-%d", len(s.runs)+1)
	s.runs = append(s.runs, *run)
	return nil
}

func (s *redactionStoreStub) ListRuns(ctx context.Context, docID string, limit int) ([]models.RedactionRun, error) {
	return append([]models.RedactionRun(nil), s.runs...), nil
}

type docReaderStub struct {
	doc *models.Document
}

func (d *docReaderStub) GetByID(ctx context.Context, orgID, id string) (*models.Document, error) {
	if d.doc != nil && d.doc.OrganizationID == orgID && d.doc.ID == id {
		copied := *d.doc
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func csrDocument() *models.Document {
	return &models.Document{
		ID:             "doc-1",
		OrganizationID: "org-1",
		Type:           models.DocumentTypeReport,
		Subtype:        "CSR",
		Status:         models.DocumentStatusApproved,
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestRedactionServiceCreatePatternRejectsBadRegex(t *testing.T) {
	repo := &redactionStoreStub{}
	svc := NewRedactionService(repo, &docReaderStub{}, nil, nil, &auditStub{}, nil)

	err := svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name:    "broken",
		Pattern: "([unclosed",
		IsRegex: true,
	})
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Empty(t, repo.patterns)
}

func TestRedactionServiceResolveCascade(t *testing.T) {
	repo := &redactionStoreStub{}
	docs := &docReaderStub{doc: csrDocument()}
	svc := NewRedactionService(repo, docs, nil, nil, &auditStub{}, nil)

	require.NoError(t, svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name: "patient-ids", Pattern: "PT-\\d+", Replacement: "[REDACTED]",
		IsRegex: true, IsGlobal: true, Priority: 10, Enabled: true,
	}))
	require.NoError(t, svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name: "site-names", Pattern: "Site Alpha", Replacement: "[SITE]",
		IsGlobal: true, Priority: 20, Enabled: true,
	}))
	require.NoError(t, svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name: "disabled-globally", Pattern: "secret", Replacement: "[X]",
		Priority: 30, Enabled: false,
	}))

	// Tenant layer disables site-names; subtype layer re-enables it and
	// re-prioritizes it ahead of patient-ids. Most specific wins.
	require.NoError(t, svc.CreateOverride(context.Background(), &models.RedactionOverride{
		PatternID: "pat-2", Scope: models.RedactionScopeTenant, ScopeValue: "org-1", Enabled: boolPtr(false),
	}))
	require.NoError(t, svc.CreateOverride(context.Background(), &models.RedactionOverride{
		PatternID: "pat-2", Scope: models.RedactionScopeSubtype, ScopeValue: "CSR",
		Enabled: boolPtr(true), Priority: intPtr(5),
	}))

	resolved, cached, err := svc.Resolve(context.Background(), "org-1", "doc-1")
	require.NoError(t, err)
	require.False(t, cached)
	require.Len(t, resolved, 2)
	require.Equal(t, "site-names", resolved[0].Name)
	require.Equal(t, 5, resolved[0].ResolvedPriority)
	require.Equal(t, models.RedactionScopeSubtype, resolved[0].ResolvedScope)
	require.Equal(t, "patient-ids", resolved[1].Name)
}

func TestRedactionServiceResolveTenantDisable(t *testing.T) {
	repo := &redactionStoreStub{}
	docs := &docReaderStub{doc: csrDocument()}
	svc := NewRedactionService(repo, docs, nil, nil, &auditStub{}, nil)

	require.NoError(t, svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name: "patient-ids", Pattern: "PT-\\d+", Replacement: "[REDACTED]",
		IsRegex: true, Priority: 10, Enabled: true,
	}))
	require.NoError(t, svc.CreateOverride(context.Background(), &models.RedactionOverride{
		PatternID: "pat-1", Scope: models.RedactionScopeTenant, ScopeValue: "org-1", Enabled: boolPtr(false),
	}))

	resolved, _, err := svc.Resolve(context.Background(), "org-1", "doc-1")
	require.NoError(t, err)
	require.Empty(t, resolved)
}

func TestRedactionServiceApply(t *testing.T) {
	repo := &redactionStoreStub{}
	docs := &docReaderStub{doc: csrDocument()}
	svc := NewRedactionService(repo, docs, nil, nil, &auditStub{}, nil)

	require.NoError(t, svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name: "patient-ids", Pattern: "PT-\\d+", Replacement: "[REDACTED]",
		IsRegex: true, IsGlobal: true, Priority: 10, Enabled: true,
	}))
	require.NoError(t, svc.CreatePattern(context.Background(), &models.RedactionPattern{
		Name: "site", Pattern: "site alpha", Replacement: "[SITE]",
		IsGlobal: true, Priority: 20, Enabled: true,
	}))

	content := "Subject PT-100 enrolled at Site Alpha. PT-200 withdrew."
	redacted, run, err := svc.Apply(context.Background(), "org-1", "doc-1", "ver-1", content, "user-1")
	require.NoError(t, err)
	require.Equal(t, "Subject [REDACTED] enrolled at [SITE]. [REDACTED] withdrew.", redacted)
	require.Equal(t, 2, run.PatternsApplied)
	require.Equal(t, 3, run.MatchesFound)
	require.Len(t, repo.runs, 1)
	require.Equal(t, "user-1", repo.runs[0].RanBy)
}

func TestApplyPatternVariants(t *testing.T) {
	cases := []struct {
		name    string
		pattern models.ResolvedPattern
		input   string
		want    string
		matches int
	}{
		{
			name: "regex first match only",
			pattern: models.ResolvedPattern{RedactionPattern: models.RedactionPattern{
				Pattern: "PT-\\d+", Replacement: "[X]", IsRegex: true, CaseSensitive: true,
			}},
			input:   "PT-1 and PT-2",
			want:    "[X] and PT-2",
			matches: 1,
		},
		{
			name: "literal case sensitive global",
			pattern: models.ResolvedPattern{RedactionPattern: models.RedactionPattern{
				Pattern: "Acme", Replacement: "[CO]", CaseSensitive: true, IsGlobal: true,
			}},
			input:   "Acme and acme and Acme",
			want:    "[CO] and acme and [CO]",
			matches: 2,
		},
		{
			name: "literal case insensitive",
			pattern: models.ResolvedPattern{RedactionPattern: models.RedactionPattern{
				Pattern: "acme", Replacement: "[CO]",
			}},
			input:   "ACME first",
			want:    "[CO] first",
			matches: 1,
		},
		{
			name: "no match",
			pattern: models.ResolvedPattern{RedactionPattern: models.RedactionPattern{
				Pattern: "absent", Replacement: "[X]", CaseSensitive: true,
			}},
			input:   "nothing here",
			want:    "nothing here",
			matches: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, count := applyPattern(tc.input, tc.pattern)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.matches, count)
		})
	}
}
