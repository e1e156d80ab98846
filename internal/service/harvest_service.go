package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
	"github.com/clinforge/regdoc-api/pkg/rules"
)

type harvestStore interface {
	CreateRule(ctx context.Context, rule *models.HarvestRule) error
	ListEnabledBySection(ctx context.Context, sectionCode string) ([]models.HarvestRule, error)
	CreateExecution(ctx context.Context, rec *models.RuleExecutionRecord) error
	ListExecutions(ctx context.Context, docID string, limit int) ([]models.RuleExecutionRecord, error)
	LatestApprovedBySourceType(ctx context.Context, orgID string, docType models.DocumentType) (*models.DocumentVersion, error)
}

type harvestVersionReader interface {
	GetByID(ctx context.Context, id string) (*models.DocumentVersion, error)
	Latest(ctx context.Context, docID string) (*models.DocumentVersion, error)
}

type harvestVersionWriter interface {
	CreateVersion(ctx context.Context, orgID, docID string, content []byte, authorID, changeSummary string) (*models.DocumentVersion, error)
}

type harvestLockManager interface {
	Acquire(ctx context.Context, docID, holderID string, ttl time.Duration, reason string) (*models.Lock, error)
	Release(ctx context.Context, docID, holderID string) error
	Validate(ctx context.Context, docID, holderID string) (*models.Lock, error)
}

// HarvestResult is the outcome of evaluating every rule bound to a section.
// Version is the draft appended for the harvested blocks; it is nil when the
// pass produced nothing.
type HarvestResult struct {
	SectionCode string                       `json:"section_code"`
	Blocks      []models.ContentBlock        `json:"blocks"`
	Records     []models.RuleExecutionRecord `json:"records"`
	Version     *models.DocumentVersion      `json:"version,omitempty"`
}

// HarvestService evaluates section harvest rules. Rules run highest priority
// first; each condition is re-checked against the working section state
// immediately before its action fires, so an earlier rule's output can
// satisfy or defeat a later rule in the same pass.
type HarvestService struct {
	repo     harvestStore
	docs     documentReader
	versions harvestVersionReader
	writer   harvestVersionWriter
	locks    harvestLockManager
	metrics  *MetricsService
	audit    auditLogger
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]*sync.Mutex
}

// NewHarvestService constructs the rule engine.
func NewHarvestService(repo harvestStore, docs documentReader, versions harvestVersionReader, writer harvestVersionWriter, locks harvestLockManager, metrics *MetricsService, audit auditLogger, logger *zap.Logger) *HarvestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HarvestService{
		repo:     repo,
		docs:     docs,
		versions: versions,
		writer:   writer,
		locks:    locks,
		metrics:  metrics,
		audit:    audit,
		logger:   logger,
		running:  make(map[string]*sync.Mutex),
	}
}

// CreateRule validates the condition and action grammars before persisting.
func (s *HarvestService) CreateRule(ctx context.Context, rule *models.HarvestRule) error {
	if _, err := rules.ParseCondition(rule.Condition); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule condition")
	}
	if _, err := rules.ParseAction(rule.Action); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule action")
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create harvest rule")
	}
	return nil
}

// Executions returns past rule outcomes for a document, newest first.
func (s *HarvestService) Executions(ctx context.Context, docID string, limit int) ([]models.RuleExecutionRecord, error) {
	records, err := s.repo.ListExecutions(ctx, docID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rule executions")
	}
	return records, nil
}

// Evaluate runs every enabled rule for one section of a document. Harvested
// blocks are appended to the document as a new draft version, so a rerun
// over unchanged inputs finds its own output already in the section and
// skips. The pass holds the document's edit lock from first read to the
// version write; runs for the same document are additionally serialized so
// two concurrent passes cannot interleave their section state.
func (s *HarvestService) Evaluate(ctx context.Context, orgID, docID, sectionCode, actorID string) (*HarvestResult, error) {
	lock := s.docLock(docID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.docs.GetByID(ctx, orgID, docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	// A lock taken here lasts for the pass only; one the actor already
	// held stays in place afterwards.
	if _, err := s.locks.Validate(ctx, doc.ID, actorID); err != nil {
		if _, err := s.locks.Acquire(ctx, doc.ID, actorID, 0, "section harvest"); err != nil {
			return nil, err
		}
		defer func() {
			if err := s.locks.Release(ctx, doc.ID, actorID); err != nil {
				s.logger.Sugar().Warnw("failed to release harvest lock", "document_id", doc.ID, "error", err)
			}
		}()
	}

	state, baseBlocks, err := s.sectionState(ctx, doc, sectionCode)
	if err != nil {
		return nil, err
	}

	ruleList, err := s.repo.ListEnabledBySection(ctx, sectionCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load harvest rules")
	}

	result := &HarvestResult{SectionCode: sectionCode, Blocks: make([]models.ContentBlock, 0, len(ruleList))}
	for _, rule := range ruleList {
		rec := s.runRule(ctx, doc, rule, state, result)
		if err := s.repo.CreateExecution(ctx, rec); err != nil {
			s.logger.Sugar().Warnw("failed to record rule execution", "rule_id", rule.ID, "error", err)
		}
		result.Records = append(result.Records, *rec)
		if s.metrics != nil {
			s.metrics.RecordHarvestExecution(string(rec.Status))
		}
	}

	if len(result.Blocks) > 0 {
		version, err := s.persistBlocks(ctx, doc, append(baseBlocks, result.Blocks...), sectionCode, actorID, len(result.Blocks))
		if err != nil {
			return nil, err
		}
		result.Version = version
	}

	if s.audit != nil {
		values := map[string]interface{}{
			"section_code": sectionCode,
			"rules_run":    len(result.Records),
			"blocks":       len(result.Blocks),
		}
		if result.Version != nil {
			values["version_id"] = result.Version.ID
		}
		encoded, _ := json.Marshal(values)
		_ = s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionRuleExecution,
			Resource:   "document",
			ResourceID: &docID,
			NewValues:  encoded,
		})
	}
	return result, nil
}

// persistBlocks appends the merged block set through the version store. The
// store validates the edit lock again before writing.
func (s *HarvestService) persistBlocks(ctx context.Context, doc *models.Document, blocks []models.ContentBlock, sectionCode, actorID string, created int) (*models.DocumentVersion, error) {
	content, err := json.Marshal(struct {
		Blocks []models.ContentBlock `json:"blocks"`
	}{Blocks: blocks})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode harvested content")
	}
	summary := fmt.Sprintf("harvested %d block(s) into section %s", created, sectionCode)
	return s.writer.CreateVersion(ctx, doc.OrganizationID, doc.ID, content, actorID, summary)
}

// runRule evaluates one rule against the working state. Evaluation faults
// never abort the pass; the rule is recorded as FAILED and the pass moves on.
func (s *HarvestService) runRule(ctx context.Context, doc *models.Document, rule models.HarvestRule, state *models.SectionState, result *HarvestResult) *models.RuleExecutionRecord {
	rec := &models.RuleExecutionRecord{
		RuleID:      rule.ID,
		DocumentID:  doc.ID,
		SectionCode: rule.SectionCode,
		Status:      models.RuleExecutionSkipped,
	}
	fail := func(err error) *models.RuleExecutionRecord {
		detail := err.Error()
		rec.Status = models.RuleExecutionFailed
		rec.Detail = &detail
		s.logger.Sugar().Warnw("rule evaluation failed",
			"rule_id", rule.ID, "document_id", doc.ID, "error", err)
		return rec
	}

	cond, err := rules.ParseCondition(rule.Condition)
	if err != nil {
		return fail(appErrors.Wrap(err, appErrors.ErrRuleEvaluation.Code, appErrors.ErrRuleEvaluation.Status, "condition parse"))
	}
	action, err := rules.ParseAction(rule.Action)
	if err != nil {
		return fail(appErrors.Wrap(err, appErrors.ErrRuleEvaluation.Code, appErrors.ErrRuleEvaluation.Status, "action parse"))
	}

	// First check decides whether the rule is a candidate at all.
	if !cond.Eval(*state) {
		return rec
	}

	block, err := s.pullBlock(ctx, doc.OrganizationID, action)
	if err != nil {
		return fail(err)
	}

	// The pull may be slow; re-check right before mutating state so the
	// condition still holds against any blocks added since the first check.
	if !cond.Eval(*state) {
		return rec
	}
	if state.HasBlock(block.Name) {
		detail := fmt.Sprintf("block %q already present", block.Name)
		rec.Detail = &detail
		return rec
	}

	block.SectionCode = rule.SectionCode
	state.Present = true
	state.Blocks[block.Name] = block
	result.Blocks = append(result.Blocks, block)
	rec.Status = models.RuleExecutionSuccess
	rec.BlocksCreated = 1
	return rec
}

// pullBlock resolves a pullBlock action against the newest approved version
// of the source document type in the same organization.
func (s *HarvestService) pullBlock(ctx context.Context, orgID string, action *rules.Action) (models.ContentBlock, error) {
	source, err := s.repo.LatestApprovedBySourceType(ctx, orgID, models.DocumentType(action.SourceType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ContentBlock{}, appErrors.Clone(appErrors.ErrRuleEvaluation,
				fmt.Sprintf("no approved %s document to pull from", action.SourceType))
		}
		return models.ContentBlock{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source version")
	}
	blocks, err := parseBlocks(source.Content)
	if err != nil {
		return models.ContentBlock{}, appErrors.Wrap(err, appErrors.ErrRuleEvaluation.Code, appErrors.ErrRuleEvaluation.Status, "source content unreadable")
	}
	for _, b := range blocks {
		if b.Name == action.BlockID {
			b.SourceType = action.SourceType
			return b, nil
		}
	}
	return models.ContentBlock{}, appErrors.Clone(appErrors.ErrRuleEvaluation,
		fmt.Sprintf("block %q not found in source %s", action.BlockID, action.SourceType))
}

// sectionState builds the rule-engine view of one section from the newest
// version of the document, so a pass sees what the previous pass wrote. The
// full block list comes back alongside the state for merging harvested
// output. A document with no versions yields an absent section.
func (s *HarvestService) sectionState(ctx context.Context, doc *models.Document, sectionCode string) (*models.SectionState, []models.ContentBlock, error) {
	state := &models.SectionState{
		DocumentID:  doc.ID,
		SectionCode: sectionCode,
		Blocks:      make(map[string]models.ContentBlock),
	}
	version, err := s.versions.Latest(ctx, doc.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, nil, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest version")
	}
	blocks, err := parseBlocks(version.Content)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "latest version content unreadable")
	}
	for _, b := range blocks {
		if b.SectionCode != sectionCode {
			continue
		}
		state.Present = true
		state.Blocks[b.Name] = b
	}
	return state, blocks, nil
}

func (s *HarvestService) docLock(docID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.running[docID]
	if !ok {
		lock = &sync.Mutex{}
		s.running[docID] = lock
	}
	return lock
}

func parseBlocks(content []byte) ([]models.ContentBlock, error) {
	var payload struct {
		Blocks []models.ContentBlock `json:"blocks"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil, err
	}
	return payload.Blocks, nil
}
