package postgres

import (
	"context"
	"fmt"
	"time"

	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
	"theglocal-monetization/internal/infra/metrics"
	red "theglocal-monetization/internal/infra/redis"
)

var _ repository.PaymentRepository = (*paymentRepoCacheDecorator)(nil)

// paymentRepoCacheDecorator keeps a lookaside map of idempotency key ->
// transaction id so replayed webhook deliveries skip a round trip to
// Postgres. The cache is write-through and purely an optimization: the
// unique constraint on idempotency_key remains the authority, and a cache
// failure silently degrades to the inner repo.
type paymentRepoCacheDecorator struct {
	inner repository.PaymentRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewPaymentRepoCacheDecorator(inner repository.PaymentRepository, cache red.RedisClient, ttl time.Duration) repository.PaymentRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &paymentRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func idemKey(key string) string { return fmt.Sprintf("payment:idem:%s", key) }

func (d *paymentRepoCacheDecorator) CreateIdempotent(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (string, bool, error) {
	if id, err := d.cache.Get(ctx, idemKey(p.IdempotencyKey)); err == nil && id != "" {
		metrics.IncCacheRequest("payment_idem", "hit")
		return id, false, nil
	}
	metrics.IncCacheRequest("payment_idem", "miss")

	id, created, err := d.inner.CreateIdempotent(ctx, tx, p)
	if err != nil {
		return "", false, err
	}
	_ = d.cache.Set(ctx, idemKey(p.IdempotencyKey), id, d.ttl)
	return id, created, nil
}

// Pass-through methods; status mutations are never cached.

func (d *paymentRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	return d.inner.FindByID(ctx, tx, id)
}

func (d *paymentRepoCacheDecorator) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string, method model.PaymentMethod) (*model.PaymentTransaction, error) {
	return d.inner.FindByExternalID(ctx, tx, externalID, method)
}

func (d *paymentRepoCacheDecorator) UpdateStatusValidated(ctx context.Context, tx repository.Tx, id string, newStatus model.PaymentStatus, opts model.StatusUpdate) (bool, error) {
	return d.inner.UpdateStatusValidated(ctx, tx, id, newStatus, opts)
}

func (d *paymentRepoCacheDecorator) MarkRetry(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return d.inner.MarkRetry(ctx, tx, id)
}

func (d *paymentRepoCacheDecorator) ListFailedSince(ctx context.Context, tx repository.Tx, failedBefore time.Time, limit int) ([]*model.PaymentTransaction, error) {
	return d.inner.ListFailedSince(ctx, tx, failedBefore, limit)
}

func (d *paymentRepoCacheDecorator) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PaymentTransaction, error) {
	return d.inner.ListByUser(ctx, tx, userID, limit)
}

func (d *paymentRepoCacheDecorator) DeleteOldFailed(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	return d.inner.DeleteOldFailed(ctx, tx, olderThan)
}

func (d *paymentRepoCacheDecorator) Stats(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error) {
	return d.inner.Stats(ctx, tx, since)
}
