package repository

import (
	"context"
	"time"

	"theglocal-monetization/internal/domain/model"
)

// SubscriptionStateRepository owns the subscription lifecycle columns of a
// subscribable entity. It never creates entities; a write against a missing
// entity reports model-not-found.
type SubscriptionStateRepository interface {
	FindByEntity(ctx context.Context, tx Tx, entityID string) (*model.SubscriptionState, error)

	// SetGracePeriod stamps status=grace_period with the given start and
	// reason. Re-stamping an entity already in grace period is allowed
	// (last failure wins).
	SetGracePeriod(ctx context.Context, tx Tx, entityID string, start time.Time, reason string) error

	// SetExpired stamps status=expired, clears the grace start and records
	// the expiry instant.
	SetExpired(ctx context.Context, tx Tx, entityID string, at time.Time) error

	// SetActive stamps status=active, clears all grace fields and records the
	// restore instant.
	SetActive(ctx context.Context, tx Tx, entityID string, at time.Time) error

	ListInGracePeriod(ctx context.Context, tx Tx, limit int) ([]*model.SubscriptionState, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
