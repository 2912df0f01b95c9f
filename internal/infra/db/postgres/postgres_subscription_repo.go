package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
)

var _ repository.SubscriptionStateRepository = (*subscriptionStateRepo)(nil)

// subscriptionStateRepo writes the lifecycle columns of artist_profiles.
// Rows are created by the account service; every UPDATE here targets an
// existing row and reports ErrNotFound when no row matched.
type subscriptionStateRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionStateRepo(pool *pgxpool.Pool) *subscriptionStateRepo {
	return &subscriptionStateRepo{pool: pool}
}

const subscriptionColumns = `id, subscription_status, subscription_grace_period_start, subscription_grace_reason, subscription_expired_at, subscription_restored_at, updated_at`

func (r *subscriptionStateRepo) FindByEntity(ctx context.Context, tx repository.Tx, entityID string) (*model.SubscriptionState, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM artist_profiles WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, entityID)
	if err != nil {
		return nil, err
	}
	return scanSubscriptionState(row)
}

func (r *subscriptionStateRepo) SetGracePeriod(ctx context.Context, tx repository.Tx, entityID string, start time.Time, reason string) error {
	const q = `
UPDATE artist_profiles
   SET subscription_status = 'grace_period',
       subscription_grace_period_start = $2,
       subscription_grace_reason = $3,
       updated_at = NOW()
 WHERE id = $1;`
	return r.execExpectingRow(ctx, tx, q, entityID, start, reason)
}

func (r *subscriptionStateRepo) SetExpired(ctx context.Context, tx repository.Tx, entityID string, at time.Time) error {
	const q = `
UPDATE artist_profiles
   SET subscription_status = 'expired',
       subscription_grace_period_start = NULL,
       subscription_expired_at = $2,
       updated_at = NOW()
 WHERE id = $1;`
	return r.execExpectingRow(ctx, tx, q, entityID, at)
}

func (r *subscriptionStateRepo) SetActive(ctx context.Context, tx repository.Tx, entityID string, at time.Time) error {
	const q = `
UPDATE artist_profiles
   SET subscription_status = 'active',
       subscription_grace_period_start = NULL,
       subscription_grace_reason = NULL,
       subscription_restored_at = $2,
       updated_at = NOW()
 WHERE id = $1;`
	return r.execExpectingRow(ctx, tx, q, entityID, at)
}

func (r *subscriptionStateRepo) ListInGracePeriod(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionState, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `SELECT ` + subscriptionColumns + ` FROM artist_profiles
 WHERE subscription_status='grace_period'
 ORDER BY subscription_grace_period_start ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	var out []*model.SubscriptionState
	for rows.Next() {
		s, err := scanSubscriptionState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *subscriptionStateRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT subscription_status, COUNT(*) FROM artist_profiles GROUP BY subscription_status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.SubscriptionStatus(status)] = count
	}
	return out, nil
}

func (r *subscriptionStateRepo) execExpectingRow(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubscriptionState(row pgx.Row) (*model.SubscriptionState, error) {
	s := &model.SubscriptionState{}
	var status string
	err := row.Scan(&s.EntityID, &status, &s.GracePeriodStart, &s.GraceReason,
		&s.ExpiredAt, &s.RestoredAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}
