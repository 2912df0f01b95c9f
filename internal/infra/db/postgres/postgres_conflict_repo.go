package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
)

var _ repository.ConflictRepository = (*conflictRepo)(nil)

type conflictRepo struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

func NewConflictRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *conflictRepo {
	l := logger.With().Str("component", "ConflictRepo").Logger()
	return &conflictRepo{pool: pool, log: &l}
}

const conflictColumns = `id, table_name, record_id, conflict_type, resolution_strategy, status, conflict_data, resolution_data, resolved_by, resolved_at, created_at`

func (r *conflictRepo) Save(ctx context.Context, tx repository.Tx, c *model.ConflictResolution) error {
	const q = `
INSERT INTO conflict_resolutions (
  id, table_name, record_id, conflict_type, resolution_strategy, status,
  conflict_data, resolution_data, resolved_by, resolved_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
) ON CONFLICT (id) DO UPDATE SET
  status=$6, resolution_data=$8, resolved_by=$9, resolved_at=$10;`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.TableName, c.RecordID, string(c.Type), string(c.Strategy), string(c.Status),
		c.ConflictData, c.ResolutionData, c.ResolvedBy, c.ResolvedAt, c.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *conflictRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConflictResolution, error) {
	q := `SELECT ` + conflictColumns + ` FROM conflict_resolutions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return r.scanConflict(row)
}

func (r *conflictRepo) ListPending(ctx context.Context, tx repository.Tx, table string, limit int) ([]*model.ConflictResolution, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + conflictColumns + ` FROM conflict_resolutions WHERE status IN ('pending','escalated')`
	args := []interface{}{limit}
	if table != "" {
		q += ` AND table_name=$2`
		args = append(args, table)
	}
	q += ` ORDER BY created_at ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	var out []*model.ConflictResolution
	for rows.Next() {
		c, err := r.scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *conflictRepo) MarkResolved(ctx context.Context, tx repository.Tx, id string, resolvedBy string, data map[string]interface{}, at time.Time) (bool, error) {
	const q = `
UPDATE conflict_resolutions
   SET status='resolved', resolved_by=$2, resolution_data=$3, resolved_at=$4
 WHERE id=$1 AND status IN ('pending','escalated');`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, resolvedBy, data, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *conflictRepo) MarkEscalated(ctx context.Context, tx repository.Tx, id string, reason string) (bool, error) {
	const q = `
UPDATE conflict_resolutions
   SET status='escalated',
       conflict_data = conflict_data || jsonb_build_object('escalation_reason', $2::text)
 WHERE id=$1 AND status='pending';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, reason)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *conflictRepo) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.ConflictStats, error) {
	const q = `
SELECT status,
       COUNT(*),
       COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) * 1000)
                FILTER (WHERE status = 'resolved' AND resolved_at IS NOT NULL), 0)
  FROM conflict_resolutions
 WHERE created_at >= $1
 GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q, since)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	stats := &model.ConflictStats{Counts: make(map[model.ConflictStatus]int)}
	for rows.Next() {
		var status string
		var count int
		var meanMillis float64
		if err := rows.Scan(&status, &count, &meanMillis); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		stats.Counts[model.ConflictStatus(status)] = count
		if model.ConflictStatus(status) == model.ConflictStatusResolved {
			stats.MeanResolutionMillis = int64(meanMillis)
		}
	}
	return stats, nil
}

// scanConflict maps a row into the entity, normalizing enum columns
// leniently: an unknown value falls back to a safe default and logs a
// warning rather than failing the read.
func (r *conflictRepo) scanConflict(row pgx.Row) (*model.ConflictResolution, error) {
	c := &model.ConflictResolution{}
	var conflictType, strategy, status string
	err := row.Scan(&c.ID, &c.TableName, &c.RecordID, &conflictType, &strategy, &status,
		&c.ConflictData, &c.ResolutionData, &c.ResolvedBy, &c.ResolvedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}

	var ok bool
	if c.Type, ok = model.NormalizeConflictType(conflictType); !ok {
		r.log.Warn().Str("conflict_id", c.ID).Str("value", conflictType).Msg("unknown conflict_type, defaulting to update")
	}
	if c.Strategy, ok = model.NormalizeStrategy(strategy); !ok {
		r.log.Warn().Str("conflict_id", c.ID).Str("value", strategy).Msg("unknown resolution_strategy, defaulting to manual")
	}
	if c.Status, ok = model.NormalizeConflictStatus(status); !ok {
		r.log.Warn().Str("conflict_id", c.ID).Str("value", status).Msg("unknown conflict status, defaulting to pending")
	}
	return c, nil
}
