package service

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
	"github.com/clinforge/regdoc-api/internal/repository"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type redactionStore interface {
	CreatePattern(ctx context.Context, p *models.RedactionPattern) error
	ListPatterns(ctx context.Context) ([]models.RedactionPattern, error)
	CreateOverride(ctx context.Context, o *models.RedactionOverride) error
	ListOverrides(ctx context.Context, scopes map[models.RedactionScope]string) ([]models.RedactionOverride, error)
	CreateRun(ctx context.Context, run *models.RedactionRun) error
	ListRuns(ctx context.Context, docID string, limit int) ([]models.RedactionRun, error)
}

type documentReader interface {
	GetByID(ctx context.Context, orgID, id string) (*models.Document, error)
}

// RedactionService resolves the scope-priority cascade and applies the
// resulting pattern list at export time. Resolution is deterministic:
// subtype > type > tenant > global default.
type RedactionService struct {
	repo    redactionStore
	docs    documentReader
	cache   *CacheService
	metrics *MetricsService
	audit   auditLogger
	logger  *zap.Logger
}

// NewRedactionService constructs the resolver.
func NewRedactionService(repo redactionStore, docs documentReader, cache *CacheService, metrics *MetricsService, audit auditLogger, logger *zap.Logger) *RedactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedactionService{
		repo:    repo,
		docs:    docs,
		cache:   cache,
		metrics: metrics,
		audit:   audit,
		logger:  logger,
	}
}

// CreatePattern registers a global pattern. Regex patterns must compile.
func (s *RedactionService) CreatePattern(ctx context.Context, p *models.RedactionPattern) error {
	if p.IsRegex {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid regex pattern")
		}
	}
	if err := s.repo.CreatePattern(ctx, p); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pattern")
	}
	return s.invalidate(ctx)
}

// CreateOverride stores a scope override and drops cached resolutions.
func (s *RedactionService) CreateOverride(ctx context.Context, o *models.RedactionOverride) error {
	if err := s.repo.CreateOverride(ctx, o); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create override")
	}
	return s.invalidate(ctx)
}

// Resolve returns the ordered pattern list for a document together with a
// flag reporting whether the list came from the cache. For each global
// pattern the most specific override present decides enablement and
// priority; the list is sorted ascending by resolved priority.
func (s *RedactionService) Resolve(ctx context.Context, orgID, docID string) ([]models.ResolvedPattern, bool, error) {
	var cached []models.ResolvedPattern
	key := repository.RedactionKey(docID)
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	doc, err := s.docs.GetByID(ctx, orgID, docID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "document not found")
	}

	patterns, err := s.repo.ListPatterns(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patterns")
	}
	overrides, err := s.repo.ListOverrides(ctx, map[models.RedactionScope]string{
		models.RedactionScopeTenant:  doc.OrganizationID,
		models.RedactionScopeType:    string(doc.Type),
		models.RedactionScopeSubtype: doc.Subtype,
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overrides")
	}

	// Most specific layer wins per pattern and per field.
	byPattern := make(map[string]map[models.RedactionScope]models.RedactionOverride, len(overrides))
	for _, o := range overrides {
		if byPattern[o.PatternID] == nil {
			byPattern[o.PatternID] = make(map[models.RedactionScope]models.RedactionOverride, 3)
		}
		byPattern[o.PatternID][o.Scope] = o
	}

	specificity := []models.RedactionScope{
		models.RedactionScopeSubtype,
		models.RedactionScopeType,
		models.RedactionScopeTenant,
	}

	resolved := make([]models.ResolvedPattern, 0, len(patterns))
	for _, pattern := range patterns {
		enabled := pattern.Enabled
		priority := pattern.Priority
		scope := models.RedactionScopeGlobal
		enabledDecided, priorityDecided := false, false
		for _, layer := range specificity {
			o, ok := byPattern[pattern.ID][layer]
			if !ok {
				continue
			}
			if !enabledDecided && o.Enabled != nil {
				enabled = *o.Enabled
				enabledDecided = true
				if scope == models.RedactionScopeGlobal {
					scope = layer
				}
			}
			if !priorityDecided && o.Priority != nil {
				priority = *o.Priority
				priorityDecided = true
				if scope == models.RedactionScopeGlobal {
					scope = layer
				}
			}
		}
		if !enabled {
			continue
		}
		resolved = append(resolved, models.ResolvedPattern{
			RedactionPattern: pattern,
			ResolvedPriority: priority,
			ResolvedScope:    scope,
		})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].ResolvedPriority != resolved[j].ResolvedPriority {
			return resolved[i].ResolvedPriority < resolved[j].ResolvedPriority
		}
		return resolved[i].Name < resolved[j].Name
	})

	if err := s.cache.Set(ctx, key, resolved, 0); err != nil {
		s.logger.Sugar().Warnw("failed to cache resolved patterns", "document_id", docID, "error", err)
	}
	return resolved, false, nil
}

// Apply runs the resolved cascade over content, persists the run record and
// returns the redacted output with the run counters.
func (s *RedactionService) Apply(ctx context.Context, orgID, docID, versionID, content, actorID string) (string, *models.RedactionRun, error) {
	patterns, _, err := s.Resolve(ctx, orgID, docID)
	if err != nil {
		return "", nil, err
	}
	start := time.Now()
	redacted := content
	matches := 0
	for _, p := range patterns {
		var count int
		redacted, count = applyPattern(redacted, p)
		matches += count
	}

	run := &models.RedactionRun{
		DocumentID:      docID,
		VersionID:       versionID,
		PatternsApplied: len(patterns),
		MatchesFound:    matches,
		ElapsedMs:       time.Since(start).Milliseconds(),
		RanBy:           actorID,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record redaction run")
	}
	if s.metrics != nil {
		s.metrics.RecordRedaction(len(patterns), matches)
	}
	if s.audit != nil {
		values, _ := json.Marshal(run)
		_ = s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionRedactionRun,
			Resource:   "document",
			ResourceID: &docID,
			NewValues:  values,
		})
	}
	return redacted, run, nil
}

// Runs returns past export-time applications for a document.
func (s *RedactionService) Runs(ctx context.Context, docID string, limit int) ([]models.RedactionRun, error) {
	runs, err := s.repo.ListRuns(ctx, docID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list redaction runs")
	}
	return runs, nil
}

func (s *RedactionService) invalidate(ctx context.Context) error {
	if err := s.cache.Invalidate(ctx, repository.RedactionKeyPattern); err != nil {
		s.logger.Sugar().Warnw("failed to invalidate resolved pattern cache", "error", err)
	}
	return nil
}

// applyPattern applies one resolved pattern and reports the match count.
func applyPattern(content string, p models.ResolvedPattern) (string, int) {
	if p.IsRegex {
		expr := p.Pattern
		if !p.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return content, 0
		}
		if p.IsGlobal {
			count := len(re.FindAllStringIndex(content, -1))
			return re.ReplaceAllString(content, p.Replacement), count
		}
		loc := re.FindStringIndex(content)
		if loc == nil {
			return content, 0
		}
		return content[:loc[0]] + re.ReplaceAllString(content[loc[0]:loc[1]], p.Replacement) + content[loc[1]:], 1
	}

	if p.CaseSensitive {
		limit := 1
		if p.IsGlobal {
			limit = -1
		}
		count := strings.Count(content, p.Pattern)
		if count == 0 {
			return content, 0
		}
		if limit == 1 && count > 1 {
			count = 1
		}
		return strings.Replace(content, p.Pattern, p.Replacement, limit), count
	}

	// Case-insensitive literal via quoted regex.
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(p.Pattern))
	if err != nil {
		return content, 0
	}
	if p.IsGlobal {
		count := len(re.FindAllStringIndex(content, -1))
		return re.ReplaceAllString(content, p.Replacement), count
	}
	loc := re.FindStringIndex(content)
	if loc == nil {
		return content, 0
	}
	return content[:loc[0]] + p.Replacement + content[loc[1]:], 1
}
