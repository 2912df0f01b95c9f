package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, idempotency_key, user_id, artist_id, subscription_id, amount, currency, payment_method, status, previous_status, state_transitions, external_payment_id, external_order_id, external_subscription_id, retry_count, max_retries, created_at, updated_at, completed_at, failed_at, refunded_at, error_message, error_code, metadata`

func (r *paymentRepo) CreateIdempotent(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (string, bool, error) {
	// The no-op DO UPDATE makes the conflicting row visible to RETURNING;
	// xmax = 0 distinguishes a fresh insert from a replayed key.
	const q = `
INSERT INTO payment_transactions (
  id, idempotency_key, user_id, artist_id, subscription_id, amount, currency, payment_method,
  status, previous_status, state_transitions, retry_count, max_retries, created_at, updated_at, metadata
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$9,'[]'::jsonb,0,$10,NOW(),NOW(),$11
) ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
RETURNING id, (xmax = 0) AS created;`

	row, err := pickRow(ctx, r.pool, tx, q,
		p.ID, p.IdempotencyKey, p.UserID, p.ArtistID, p.SubscriptionID,
		p.Amount, p.Currency, string(p.PaymentMethod), string(model.PaymentStatusCreated),
		p.MaxRetries, p.Metadata)
	if err != nil {
		return "", false, err
	}

	var id string
	var created bool
	if err := row.Scan(&id, &created); err != nil {
		return "", false, domain.ErrOperationFailed
	}
	return id, created, nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string, method model.PaymentMethod) (*model.PaymentTransaction, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE external_payment_id=$1 AND payment_method=$2 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, externalID, string(method))
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatusValidated(ctx context.Context, tx repository.Tx, id string, newStatus model.PaymentStatus, opts model.StatusUpdate) (bool, error) {
	sources := make([]string, 0, 4)
	for _, s := range model.ValidSources(newStatus) {
		sources = append(sources, string(s))
	}
	if len(sources) == 0 {
		// Nothing transitions into an unknown status.
		return false, nil
	}

	var metaJSON *string
	if len(opts.Metadata) > 0 {
		b, err := json.Marshal(opts.Metadata)
		if err != nil {
			return false, domain.ErrInvalidArgument
		}
		s := string(b)
		metaJSON = &s
	}

	// Single statement: validate against the transition table, append the log
	// entry built from the stored status, stamp the terminal timestamp.
	const q = `
UPDATE payment_transactions
   SET previous_status = status,
       status = $2,
       state_transitions = state_transitions || jsonb_strip_nulls(jsonb_build_object(
           'from_status', status,
           'to_status',   $2::text,
           'timestamp',   NOW(),
           'external_payment_id', NULLIF($3, ''),
           'error_message',       NULLIF($4, ''),
           'error_code',          NULLIF($5, ''))),
       external_payment_id = COALESCE(NULLIF($3, ''), external_payment_id),
       error_message = COALESCE(NULLIF($4, ''), error_message),
       error_code = COALESCE(NULLIF($5, ''), error_code),
       metadata = CASE WHEN $6::jsonb IS NULL THEN metadata ELSE metadata || $6::jsonb END,
       completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
       failed_at    = CASE WHEN $2 = 'failed'    THEN NOW() ELSE failed_at    END,
       refunded_at  = CASE WHEN $2 = 'refunded'  THEN NOW() ELSE refunded_at  END,
       updated_at = NOW()
 WHERE id = $1
   AND status = ANY($7);`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(newStatus),
		opts.ExternalPaymentID, opts.ErrorMessage, opts.ErrorCode, metaJSON, sources)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) MarkRetry(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET previous_status = status,
       status = 'pending',
       retry_count = retry_count + 1,
       state_transitions = state_transitions || jsonb_build_object(
           'from_status', 'failed', 'to_status', 'pending', 'timestamp', NOW()),
       updated_at = NOW()
 WHERE id = $1
   AND status = 'failed'
   AND retry_count < max_retries;`

	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListFailedSince(ctx context.Context, tx repository.Tx, failedBefore time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payment_transactions
 WHERE status='failed' AND failed_at IS NOT NULL AND failed_at < $1 AND retry_count < max_retries
 ORDER BY failed_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, failedBefore, limit)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + paymentColumns + ` FROM payment_transactions
 WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (r *paymentRepo) DeleteOldFailed(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	const q = `DELETE FROM payment_transactions
 WHERE status='failed' AND retry_count >= max_retries AND failed_at IS NOT NULL AND failed_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, olderThan)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}

func (r *paymentRepo) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error) {
	const q = `
SELECT status,
       COUNT(*),
       COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)
  FROM payment_transactions
 WHERE created_at >= $1
 GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q, since)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	stats := &model.PaymentStats{Counts: make(map[model.PaymentStatus]int)}
	for rows.Next() {
		var status string
		var count int
		var completedSum int64
		if err := rows.Scan(&status, &count, &completedSum); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		stats.Counts[model.PaymentStatus(status)] = count
		stats.TotalAmount += completedSum
	}
	return stats, nil
}

func wrapQueryErr(err error) error {
	switch err {
	case pgx.ErrNoRows:
		return domain.ErrNotFound
	case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
		return err
	default:
		return domain.ErrOperationFailed
	}
}

func scanPayment(row pgx.Row) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	var method, status, prevStatus string
	var transitions []byte
	err := row.Scan(&p.ID, &p.IdempotencyKey, &p.UserID, &p.ArtistID, &p.SubscriptionID,
		&p.Amount, &p.Currency, &method, &status, &prevStatus, &transitions,
		&p.ExternalPaymentID, &p.ExternalOrderID, &p.ExternalSubscriptionID,
		&p.RetryCount, &p.MaxRetries, &p.CreatedAt, &p.UpdatedAt,
		&p.CompletedAt, &p.FailedAt, &p.RefundedAt, &p.ErrorMessage, &p.ErrorCode, &p.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.PaymentMethod = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	p.PreviousStatus = model.PaymentStatus(prevStatus)
	if len(transitions) > 0 {
		if err := json.Unmarshal(transitions, &p.StateTransitions); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return p, nil
}

func scanPayments(rows pgx.Rows) ([]*model.PaymentTransaction, error) {
	var out []*model.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
