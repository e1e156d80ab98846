package models

import "time"

// Lock is a short-lived exclusive hold on a document. At most one unexpired
// lock exists per document; an expired lock is treated as absent everywhere,
// whatever its stored holder.
type Lock struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	HolderID   string    `db:"holder_id" json:"holder_id"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	AcquiredAt time.Time `db:"acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the lock is past its server-assigned expiry.
func (l *Lock) Expired(now time.Time) bool {
	return l == nil || !now.Before(l.ExpiresAt)
}

// HeldBy reports whether the lock is currently valid for the given holder.
func (l *Lock) HeldBy(holderID string, now time.Time) bool {
	return l != nil && !l.Expired(now) && l.HolderID == holderID
}
