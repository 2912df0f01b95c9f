package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/ports/repository"
)

var _ repository.NotificationRepository = (*notificationRepo)(nil)

type notificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) repository.NotificationRepository {
	return &notificationRepo{pool: pool}
}

func (r *notificationRepo) Save(ctx context.Context, tx repository.Tx, entityID, kind, detail string, dayOffset int) error {
	// Duplicate prevention is left to the UNIQUE constraint on
	// (entity_id, kind, day_offset); ON CONFLICT DO NOTHING keeps a re-run
	// sweep from failing on rows it already wrote.
	const q = `
INSERT INTO subscription_notifications (id, entity_id, kind, detail, day_offset)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (entity_id, kind, day_offset) DO NOTHING;`

	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), entityID, kind, detail, dayOffset)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *notificationRepo) Exists(ctx context.Context, tx repository.Tx, entityID, kind string, dayOffset int) (bool, error) {
	const q = `
SELECT EXISTS(
    SELECT 1 FROM subscription_notifications
    WHERE entity_id = $1 AND kind = $2 AND day_offset = $3
);`
	var exists bool
	row, err := pickRow(ctx, r.pool, tx, q, entityID, kind, dayOffset)
	if err != nil {
		return false, err
	}

	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
