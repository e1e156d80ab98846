package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clinforge/regdoc-api/internal/models"
	appErrors "github.com/clinforge/regdoc-api/pkg/errors"
)

type lockRepoStub struct {
	locks map[string]*models.Lock
}

func newLockRepoStub() *lockRepoStub {
	return &lockRepoStub{locks: make(map[string]*models.Lock)}
}

func (r *lockRepoStub) Acquire(ctx context.Context, lock *models.Lock, now time.Time) error {
	current, ok := r.locks[lock.DocumentID]
	if ok && !current.Expired(now) && current.HolderID != lock.HolderID {
		return sql.ErrNoRows
	}
	copied := *lock
	r.locks[lock.DocumentID] = &copied
	return nil
}

func (r *lockRepoStub) GetActive(ctx context.Context, docID string, now time.Time) (*models.Lock, error) {
	lock, ok := r.locks[docID]
	if !ok || lock.Expired(now) {
		return nil, sql.ErrNoRows
	}
	copied := *lock
	return &copied, nil
}

func (r *lockRepoStub) Release(ctx context.Context, docID, holderID string) (bool, error) {
	lock, ok := r.locks[docID]
	if !ok || lock.HolderID != holderID {
		return false, nil
	}
	delete(r.locks, docID)
	return true, nil
}

func (r *lockRepoStub) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for docID, lock := range r.locks {
		if lock.Expired(now) {
			delete(r.locks, docID)
			count++
		}
	}
	return count, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestLockService(repo *lockRepoStub, audit *auditStub) *LockService {
	return NewLockService(repo, audit, nil, LockServiceConfig{
		DefaultTTL: 15 * time.Minute,
		MaxTTL:     time.Hour,
	})
}

func TestLockServiceAcquireAndRefresh(t *testing.T) {
	repo := newLockRepoStub()
	audit := &auditStub{}
	svc := newTestLockService(repo, audit)

	lock, err := svc.Acquire(context.Background(), "doc-1", "user-1", 0, "editing section 2")
	require.NoError(t, err)
	require.Equal(t, "user-1", lock.HolderID)
	require.Equal(t, 15*time.Minute, lock.ExpiresAt.Sub(lock.AcquiredAt))

	// The holder refreshing their own lock extends it rather than conflicting.
	refreshed, err := svc.Acquire(context.Background(), "doc-1", "user-1", 30*time.Minute, "")
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, refreshed.ExpiresAt.Sub(refreshed.AcquiredAt))

	require.Len(t, audit.logs, 2)
	require.Equal(t, models.AuditActionLockAcquire, audit.logs[0].Action)
}

func TestLockServiceAcquireConflict(t *testing.T) {
	repo := newLockRepoStub()
	svc := newTestLockService(repo, &auditStub{})

	_, err := svc.Acquire(context.Background(), "doc-1", "user-1", time.Hour, "")
	require.NoError(t, err)

	_, err = svc.Acquire(context.Background(), "doc-1", "user-2", time.Hour, "")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrLockHeld.Code, appErrors.FromError(err).Code)
}

func TestLockServiceTTLClamp(t *testing.T) {
	repo := newLockRepoStub()
	svc := newTestLockService(repo, &auditStub{})

	lock, err := svc.Acquire(context.Background(), "doc-1", "user-1", 12*time.Hour, "")
	require.NoError(t, err)
	require.Equal(t, time.Hour, lock.ExpiresAt.Sub(lock.AcquiredAt))
}

func TestLockServiceExpiredLockIsAbsent(t *testing.T) {
	repo := newLockRepoStub()
	svc := newTestLockService(repo, &auditStub{})
	svc.now = func() time.Time { return time.Now().UTC() }

	_, err := svc.Acquire(context.Background(), "doc-1", "user-1", time.Minute, "")
	require.NoError(t, err)

	// Jump past expiry: the stale lock must not block a new holder.
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	lock, err := svc.Acquire(context.Background(), "doc-1", "user-2", time.Minute, "")
	require.NoError(t, err)
	require.Equal(t, "user-2", lock.HolderID)
}

func TestLockServiceValidate(t *testing.T) {
	repo := newLockRepoStub()
	svc := newTestLockService(repo, &auditStub{})

	_, err := svc.Validate(context.Background(), "doc-1", "user-1")
	require.Equal(t, appErrors.ErrLockRequired.Code, appErrors.FromError(err).Code)

	_, err = svc.Acquire(context.Background(), "doc-1", "user-1", time.Hour, "")
	require.NoError(t, err)

	lock, err := svc.Validate(context.Background(), "doc-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", lock.HolderID)

	_, err = svc.Validate(context.Background(), "doc-1", "user-2")
	require.Equal(t, appErrors.ErrConcurrentModification.Code, appErrors.FromError(err).Code)
}

func TestLockServiceReleaseIdempotent(t *testing.T) {
	repo := newLockRepoStub()
	audit := &auditStub{}
	svc := newTestLockService(repo, audit)

	_, err := svc.Acquire(context.Background(), "doc-1", "user-1", time.Hour, "")
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), "doc-1", "user-1"))
	require.NoError(t, svc.Release(context.Background(), "doc-1", "user-1"))

	// Only the first release is audited.
	var releases int
	for _, log := range audit.logs {
		if log.Action == models.AuditActionLockRelease {
			releases++
		}
	}
	require.Equal(t, 1, releases)
}
