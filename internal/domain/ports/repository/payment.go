package repository

import (
	"context"
	"time"

	"theglocal-monetization/internal/domain/model"
)

// PaymentRepository persists payment transactions. Every method maps to one
// atomic server-side operation: two racing callers never observe an
// interleaved read-validate-write.
type PaymentRepository interface {
	// CreateIdempotent inserts the transaction keyed on its idempotency key.
	// A replay with the same key returns the existing transaction id and
	// created=false instead of creating a duplicate row.
	CreateIdempotent(ctx context.Context, tx Tx, p *model.PaymentTransaction) (id string, created bool, err error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentTransaction, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string, method model.PaymentMethod) (*model.PaymentTransaction, error)

	// UpdateStatusValidated applies the transition as a single compare-and-set:
	// it succeeds only when the stored status is a valid source for newStatus.
	// The transition-log entry is built server-side from the stored status, so
	// the appended from-status is always the one the CAS actually saw. Stamps
	// completed_at/failed_at/refunded_at for terminal-ish targets. Returns
	// false (no error) when the stored status disallowed the move.
	UpdateStatusValidated(ctx context.Context, tx Tx, id string, newStatus model.PaymentStatus, opts model.StatusUpdate) (bool, error)

	// MarkRetry atomically re-enters a failed transaction into pending while
	// retry_count < max_retries, incrementing retry_count. Returns false when
	// the row was not failed or the budget is exhausted.
	MarkRetry(ctx context.Context, tx Tx, id string) (bool, error)

	ListFailedSince(ctx context.Context, tx Tx, failedBefore time.Time, limit int) ([]*model.PaymentTransaction, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.PaymentTransaction, error)

	// DeleteOldFailed removes terminal failed rows older than the cutoff whose
	// retry budget is spent. Returns the number of rows removed.
	DeleteOldFailed(ctx context.Context, tx Tx, olderThan time.Time) (int64, error)

	Stats(ctx context.Context, tx Tx, since time.Time) (*model.PaymentStats, error)
}
