// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"theglocal-monetization/internal/domain"
	"theglocal-monetization/internal/domain/model"
	"theglocal-monetization/internal/domain/ports/repository"
	"theglocal-monetization/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase manages the grace-period lifecycle of a subscribable
// entity in response to payment outcomes.
//
// Every method returns a boolean (or a zero value) instead of an error:
// a failed grace-period bookkeeping write must never crash a payment webhook
// handler, so persistence failures are logged here and swallowed. The sweep
// reconciles eventually.
type SubscriptionUseCase interface {
	// StartGracePeriod moves the entity into grace_period. Idempotent:
	// a second call re-stamps the start and reason (last failure wins,
	// since a fresh failure restarts the clock).
	StartGracePeriod(ctx context.Context, entityID, reason string) bool

	// CheckGracePeriodStatus is a pure read; zero value when the entity is
	// not in a grace period.
	CheckGracePeriodStatus(ctx context.Context, entityID string) model.GraceStatus

	// ProcessGracePeriodReminders sweeps all entities in grace period,
	// sending day-matched reminders and expiring overdue ones. One entity's
	// failure is logged and skipped, never aborts the batch.
	ProcessGracePeriodReminders(ctx context.Context) model.ReminderSweepResult

	// ExpireGracePeriod is the terminal consequence of an unresolved payment
	// failure; downstream reads treat expired as "hide the public profile".
	ExpireGracePeriod(ctx context.Context, entityID string) bool

	// RestoreSubscription reactivates after a successful payment. Calling it
	// on an entity not in grace period still succeeds: a second successful
	// payment is never blocked by state bookkeeping.
	RestoreSubscription(ctx context.Context, entityID, paymentTransactionID string) bool
}

// GraceSettings is fixed per deployment.
type GraceSettings struct {
	GracePeriodDays int
	ReminderDays    []int // ascending; days into the grace period
}

type subscriptionUC struct {
	states   repository.SubscriptionStateRepository
	notifs   repository.NotificationRepository
	settings GraceSettings
	now      func() time.Time
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(states repository.SubscriptionStateRepository, notifs repository.NotificationRepository, settings GraceSettings, logger *zerolog.Logger) *subscriptionUC {
	if settings.GracePeriodDays <= 0 {
		settings.GracePeriodDays = 7
	}
	if len(settings.ReminderDays) == 0 {
		settings.ReminderDays = []int{3, 6}
	}
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		states:   states,
		notifs:   notifs,
		settings: settings,
		now:      time.Now,
		log:      &l,
	}
}

func (u *subscriptionUC) StartGracePeriod(ctx context.Context, entityID, reason string) bool {
	if entityID == "" {
		return false
	}
	if err := u.states.SetGracePeriod(ctx, repository.NoTX, entityID, u.now(), reason); err != nil {
		u.log.Error().Err(err).Str("entity_id", entityID).Str("reason", reason).Msg("start grace period failed")
		return false
	}
	metrics.IncGraceStarted()
	u.notify(ctx, entityID, repository.NotificationGraceStarted, reason, 0)
	u.log.Info().Str("entity_id", entityID).Str("reason", reason).Msg("grace period started")
	return true
}

func (u *subscriptionUC) CheckGracePeriodStatus(ctx context.Context, entityID string) model.GraceStatus {
	s, err := u.states.FindByEntity(ctx, repository.NoTX, entityID)
	if err != nil {
		if err != domain.ErrNotFound {
			u.log.Error().Err(err).Str("entity_id", entityID).Msg("grace status read failed")
		}
		return model.GraceStatus{}
	}
	return s.CheckGrace(u.now(), u.settings.GracePeriodDays)
}

func (u *subscriptionUC) ProcessGracePeriodReminders(ctx context.Context) model.ReminderSweepResult {
	var result model.ReminderSweepResult

	entities, err := u.states.ListInGracePeriod(ctx, repository.NoTX, 0)
	if err != nil {
		u.log.Error().Err(err).Msg("grace sweep: listing entities failed")
		return result
	}

	now := u.now()
	for _, s := range entities {
		result.Processed++
		daysIn := s.DaysInGrace(now)
		if daysIn < 0 {
			// Status flipped between list and here; skip.
			continue
		}

		if daysIn >= u.settings.GracePeriodDays {
			if u.ExpireGracePeriod(ctx, s.EntityID) {
				result.Expired++
			}
			continue
		}

		// Reminders fire only on an exact day match, so a daily sweep sends
		// each reminder once even when run repeatedly.
		for i, day := range u.settings.ReminderDays {
			if daysIn != day {
				continue
			}
			kind := "final"
			if i == 0 {
				kind = "first"
			}
			if u.sendReminder(ctx, s.EntityID, kind, day) {
				result.RemindersSent++
			}
			break
		}
	}
	return result
}

func (u *subscriptionUC) ExpireGracePeriod(ctx context.Context, entityID string) bool {
	if err := u.states.SetExpired(ctx, repository.NoTX, entityID, u.now()); err != nil {
		u.log.Error().Err(err).Str("entity_id", entityID).Msg("expire grace period failed")
		return false
	}
	metrics.IncGraceExpired()
	u.notify(ctx, entityID, repository.NotificationGraceExpired, "", 0)
	u.log.Info().Str("entity_id", entityID).Msg("grace period expired")
	return true
}

func (u *subscriptionUC) RestoreSubscription(ctx context.Context, entityID, paymentTransactionID string) bool {
	if entityID == "" {
		return false
	}
	if err := u.states.SetActive(ctx, repository.NoTX, entityID, u.now()); err != nil {
		u.log.Error().Err(err).Str("entity_id", entityID).Str("payment_tx_id", paymentTransactionID).Msg("restore subscription failed")
		return false
	}
	metrics.IncSubscriptionRestored()
	u.notify(ctx, entityID, repository.NotificationRestored, paymentTransactionID, 0)
	u.log.Info().Str("entity_id", entityID).Str("payment_tx_id", paymentTransactionID).Msg("subscription restored")
	return true
}

// sendReminder writes the reminder row unless an identical one already
// exists (a sweep restarted mid-batch re-visits entities it already did).
func (u *subscriptionUC) sendReminder(ctx context.Context, entityID, kind string, day int) bool {
	exists, err := u.notifs.Exists(ctx, repository.NoTX, entityID, repository.NotificationGraceReminder, day)
	if err != nil {
		u.log.Error().Err(err).Str("entity_id", entityID).Msg("reminder dedup check failed")
		return false
	}
	if exists {
		return false
	}
	if err := u.notifs.Save(ctx, repository.NoTX, entityID, repository.NotificationGraceReminder, kind, day); err != nil {
		u.log.Error().Err(err).Str("entity_id", entityID).Str("kind", kind).Msg("reminder write failed")
		return false
	}
	metrics.IncGraceReminder(kind)
	u.log.Info().Str("entity_id", entityID).Str("kind", kind).Int("day", day).Msg("grace reminder sent")
	return true
}

// notify is fire-and-forget: delivery failures are logged, never surfaced.
func (u *subscriptionUC) notify(ctx context.Context, entityID, kind, detail string, day int) {
	if err := u.notifs.Save(ctx, repository.NoTX, entityID, kind, detail, day); err != nil {
		u.log.Warn().Err(err).Str("entity_id", entityID).Str("kind", kind).Msg("notification write failed")
	}
}
