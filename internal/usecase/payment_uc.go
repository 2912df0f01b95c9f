// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
	"theglocal-monetization/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase is the payment state machine. Webhook ingress calls Create /
// UpdateStatus / GetByExternalID; schedulers call FailedForRetry / Retry /
// CleanupOldFailed; the admin surface calls Stats / History.
type PaymentUseCase interface {
	// Create registers a payment attempt and returns its transaction id.
	// Replaying the same idempotency key returns the existing id.
	Create(ctx context.Context, params CreatePaymentParams) (string, error)

	// UpdateStatus applies one lifecycle transition. False means the
	// transition was invalid for the stored status or the write failed;
	// the record is untouched either way.
	UpdateStatus(ctx context.Context, id string, newStatus model.PaymentStatus, opts model.StatusUpdate) bool

	Get(ctx context.Context, id string) (*model.PaymentTransaction, error)
	// GetByExternalID is the dedup path for webhook deliveries that only
	// carry the gateway's own id. Returns nil, ErrNotFound when unknown.
	GetByExternalID(ctx context.Context, externalID string, method model.PaymentMethod) (*model.PaymentTransaction, error)

	// FailedForRetry lists failed transactions whose failure is older than
	// hoursAgo and whose retry budget is not spent. The caller decides when
	// to actually retry; this only marks eligibility.
	FailedForRetry(ctx context.Context, hoursAgo int) []*model.PaymentTransaction

	// Retry re-enters a failed transaction into pending, consuming one unit
	// of retry budget. False when the row is not failed or the budget is
	// exhausted (the latter is logged for a human to pick up).
	Retry(ctx context.Context, id string) bool

	// CleanupOldFailed removes terminal failed rows older than daysOld.
	CleanupOldFailed(ctx context.Context, daysOld int) int64

	Stats(ctx context.Context, daysBack int) (*model.PaymentStats, error)
	History(ctx context.Context, userID string, limit int) ([]*model.PaymentTransaction, error)
}

type CreatePaymentParams struct {
	UserID         string
	ArtistID       *string
	SubscriptionID *string
	Amount         int64
	Currency       string
	PaymentMethod  model.PaymentMethod
	IdempotencyKey string // generated when empty
	Metadata       map[string]interface{}
}

type paymentUC struct {
	payments   repository.PaymentRepository
	maxRetries int
	log        *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, maxRetries int, logger *zerolog.Logger) *paymentUC {
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{payments: payments, maxRetries: maxRetries, log: &l}
}

func (u *paymentUC) Create(ctx context.Context, params CreatePaymentParams) (string, error) {
	if params.UserID == "" {
		return "", domain.ErrInvalidArgument
	}
	if params.Amount <= 0 {
		return "", domain.ErrInvalidArgument
	}
	if params.Currency == "" {
		return "", domain.ErrInvalidArgument
	}
	switch params.PaymentMethod {
	case model.PaymentMethodStripe, model.PaymentMethodPayPal, model.PaymentMethodRazorpay:
	default:
		return "", domain.ErrInvalidArgument
	}

	key := params.IdempotencyKey
	if key == "" {
		var err error
		if key, err = newIdempotencyKey(); err != nil {
			return "", err
		}
	}

	p := &model.PaymentTransaction{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		UserID:         params.UserID,
		ArtistID:       params.ArtistID,
		SubscriptionID: params.SubscriptionID,
		Amount:         params.Amount,
		Currency:       params.Currency,
		PaymentMethod:  params.PaymentMethod,
		Status:         model.PaymentStatusCreated,
		MaxRetries:     u.maxRetries,
		Metadata:       params.Metadata,
	}

	id, created, err := u.payments.CreateIdempotent(ctx, repository.NoTX, p)
	if err != nil {
		u.log.Error().Err(err).Str("user_id", params.UserID).Msg("create payment failed")
		return "", err
	}
	if !created {
		u.log.Debug().Str("payment_tx_id", id).Str("idempotency_key", key).Msg("idempotency key replayed, returning existing transaction")
	}
	return id, nil
}

func (u *paymentUC) UpdateStatus(ctx context.Context, id string, newStatus model.PaymentStatus, opts model.StatusUpdate) bool {
	if id == "" || !model.KnownPaymentStatus(newStatus) {
		return false
	}

	applied, err := u.payments.UpdateStatusValidated(ctx, repository.NoTX, id, newStatus, opts)
	if err != nil {
		u.log.Error().Err(err).Str("payment_tx_id", id).Str("to", string(newStatus)).Msg("status update failed")
		return false
	}
	if !applied {
		metrics.IncPaymentTransitionRejected()
		u.log.Warn().Str("payment_tx_id", id).Str("to", string(newStatus)).Msg("transition rejected by lifecycle table")
		return false
	}
	metrics.IncPaymentTransition(string(newStatus))
	if newStatus == model.PaymentStatusCompleted {
		if p, err := u.payments.FindByID(ctx, repository.NoTX, id); err == nil {
			metrics.AddPaymentRevenue(p.Currency, p.Amount)
		}
	}
	return true
}

func (u *paymentUC) Get(ctx context.Context, id string) (*model.PaymentTransaction, error) {
	return u.payments.FindByID(ctx, repository.NoTX, id)
}

func (u *paymentUC) GetByExternalID(ctx context.Context, externalID string, method model.PaymentMethod) (*model.PaymentTransaction, error) {
	if externalID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.FindByExternalID(ctx, repository.NoTX, externalID, method)
}

func (u *paymentUC) FailedForRetry(ctx context.Context, hoursAgo int) []*model.PaymentTransaction {
	if hoursAgo < 0 {
		hoursAgo = 0
	}
	cutoff := time.Now().Add(-time.Duration(hoursAgo) * time.Hour)
	out, err := u.payments.ListFailedSince(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		u.log.Error().Err(err).Msg("list failed payments for retry")
		return nil
	}
	return out
}

func (u *paymentUC) Retry(ctx context.Context, id string) bool {
	ok, err := u.payments.MarkRetry(ctx, repository.NoTX, id)
	if err != nil {
		u.log.Error().Err(err).Str("payment_tx_id", id).Msg("retry mark failed")
		return false
	}
	if ok {
		metrics.IncPaymentRetry("requeued")
		return true
	}

	// The CAS did not fire; fetch once to report why.
	p, err := u.payments.FindByID(ctx, repository.NoTX, id)
	switch {
	case err != nil:
		metrics.IncPaymentRetry("not_found")
		u.log.Warn().Err(err).Str("payment_tx_id", id).Msg("retry requested for unknown transaction")
	case p.Status != model.PaymentStatusFailed:
		metrics.IncPaymentRetry("not_failed")
		u.log.Debug().Str("payment_tx_id", id).Str("status", string(p.Status)).Msg("retry skipped, transaction is not failed")
	case p.RetryCount >= p.MaxRetries:
		metrics.IncPaymentRetry("budget_exhausted")
		// Terminal, reported condition: surface to support rather than loop.
		u.log.Warn().Str("payment_tx_id", id).Int("retry_count", p.RetryCount).Int("max_retries", p.MaxRetries).Msg("retry budget exhausted")
	}
	return false
}

func (u *paymentUC) CleanupOldFailed(ctx context.Context, daysOld int) int64 {
	if daysOld <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -daysOld)
	n, err := u.payments.DeleteOldFailed(ctx, repository.NoTX, cutoff)
	if err != nil {
		u.log.Error().Err(err).Msg("cleanup of old failed payments failed")
		return 0
	}
	return n
}

func (u *paymentUC) Stats(ctx context.Context, daysBack int) (*model.PaymentStats, error) {
	if daysBack <= 0 {
		daysBack = 30
	}
	stats, err := u.payments.Stats(ctx, repository.NoTX, time.Now().AddDate(0, 0, -daysBack))
	if err != nil {
		return nil, err
	}
	stats.DaysBack = daysBack
	return stats, nil
}

func (u *paymentUC) History(ctx context.Context, userID string, limit int) ([]*model.PaymentTransaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.payments.ListByUser(ctx, repository.NoTX, userID, limit)
}

// newIdempotencyKey returns 16 random bytes, hex-encoded.
func newIdempotencyKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
