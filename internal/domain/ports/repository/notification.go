package repository

import "context"

// Notification kinds emitted by the subscription lifecycle.
const (
	NotificationGraceStarted  = "grace_started"
	NotificationGraceReminder = "grace_reminder"
	NotificationGraceExpired  = "grace_expired"
	NotificationRestored      = "subscription_restored"
)

// NotificationRepository is the fire-and-forget sink: this core only inserts
// rows; delivery (email/push) happens elsewhere.
type NotificationRepository interface {
	Save(ctx context.Context, tx Tx, entityID, kind, detail string, dayOffset int) error

	// Exists reports whether the same (entity, kind, dayOffset) row was
	// already written; used to keep reminder sweeps idempotent across
	// process restarts.
	Exists(ctx context.Context, tx Tx, entityID, kind string, dayOffset int) (bool, error)
}
