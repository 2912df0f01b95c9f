package repository

import (
	"context"
	"time"

	"theglocal-monetization/internal/domain/model"
)

type ConflictRepository interface {
	Save(ctx context.Context, tx Tx, c *model.ConflictResolution) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ConflictResolution, error)

	// ListPending returns pending conflicts, optionally filtered by table,
	// oldest first.
	ListPending(ctx context.Context, tx Tx, table string, limit int) ([]*model.ConflictResolution, error)

	// MarkResolved moves a conflict to resolved. Only pending and escalated
	// rows are eligible; returns false when the row was already resolved.
	MarkResolved(ctx context.Context, tx Tx, id string, resolvedBy string, data map[string]interface{}, at time.Time) (bool, error)

	// MarkEscalated parks a pending conflict for manual handling.
	MarkEscalated(ctx context.Context, tx Tx, id string, reason string) (bool, error)

	Stats(ctx context.Context, tx Tx, since time.Time) (*model.ConflictStats, error)
}
