package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type lockStore interface {
	Acquire(ctx context.Context, lock *models.Lock, now time.Time) error
	GetActive(ctx context.Context, docID string, now time.Time) (*models.Lock, error)
	Release(ctx context.Context, docID, holderID string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// LockService serializes document edits through short-lived exclusive holds.
// Expired locks are treated as absent everywhere; the sweep only reclaims
// storage.
type LockService struct {
	repo       lockStore
	audit      auditLogger
	logger     *zap.Logger
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

// LockServiceConfig tunes TTL boundaries.
type LockServiceConfig struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// NewLockService constructs the lock manager.
func NewLockService(repo lockStore, audit auditLogger, logger *zap.Logger, cfg LockServiceConfig) *LockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = time.Hour
	}
	return &LockService{
		repo:       repo,
		audit:      audit,
		logger:     logger,
		defaultTTL: cfg.DefaultTTL,
		maxTTL:     cfg.MaxTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Acquire takes the lock for the holder, or refreshes it when the holder
// already owns it. Fails with LockHeld when another holder has a live lock.
func (s *LockService) Acquire(ctx context.Context, docID, holderID string, ttl time.Duration, reason string) (*models.Lock, error) {
	if docID == "" || holderID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document id and holder are required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	now := s.now()
	lock := &models.Lock{
		DocumentID: docID,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if reason != "" {
		lock.Reason = &reason
	}
	if err := s.repo.Acquire(ctx, lock, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			current, lookupErr := s.repo.GetActive(ctx, docID, now)
			if lookupErr == nil {
				detail, _ := json.Marshal(map[string]interface{}{
					"held_by":    current.HolderID,
					"expires_at": current.ExpiresAt,
				})
				return nil, appErrors.Wrap(errors.New(string(detail)),
					appErrors.ErrLockHeld.Code, appErrors.ErrLockHeld.Status, appErrors.ErrLockHeld.Message)
			}
			return nil, appErrors.ErrLockHeld
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire lock")
	}
	s.emitAudit(ctx, holderID, models.AuditActionLockAcquire, docID, lock)
	return lock, nil
}

// Release drops the holder's lock. Releasing an already-released lock is a
// no-op.
func (s *LockService) Release(ctx context.Context, docID, holderID string) error {
	released, err := s.repo.Release(ctx, docID, holderID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release lock")
	}
	if released {
		s.emitAudit(ctx, holderID, models.AuditActionLockRelease, docID, nil)
	}
	return nil
}

// Validate confirms the holder owns a live lock on the document. Returns
// LockRequired when no live lock exists and ConcurrentModification when the
// live lock belongs to someone else.
func (s *LockService) Validate(ctx context.Context, docID, holderID string) (*models.Lock, error) {
	now := s.now()
	lock, err := s.repo.GetActive(ctx, docID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrLockRequired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lock")
	}
	if !lock.HeldBy(holderID, now) {
		return nil, appErrors.Clone(appErrors.ErrConcurrentModification,
			"lock on document "+docID+" is held by "+lock.HolderID)
	}
	return lock, nil
}

// Sweep deletes expired rows until the context is cancelled.
func (s *LockService) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.repo.DeleteExpired(ctx, s.now())
			if err != nil {
				s.logger.Sugar().Warnw("lock sweep failed", "error", err)
				continue
			}
			if count > 0 {
				s.logger.Sugar().Debugw("lock sweep", "deleted", count)
			}
		}
	}
}

func (s *LockService) emitAudit(ctx context.Context, userID, action, docID string, lock *models.Lock) {
	if s.audit == nil {
		return
	}
	var values []byte
	if lock != nil {
		values, _ = json.Marshal(lock)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "document",
		ResourceID: &docID,
		NewValues:  values,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to write audit log", "action", action, "error", err)
	}
}
