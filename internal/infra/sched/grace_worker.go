package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"theglocal-monetization/internal/infra/metrics"
	"theglocal-monetization/internal/usecase"
)

// GraceWorker runs the grace-period reminder/expiry sweep on an interval.
// The sweep itself is idempotent (reminders fire on exact day matches), so
// running it more often than daily only costs reads.
type GraceWorker struct {
	subs     usecase.SubscriptionUseCase
	interval time.Duration
	log      *zerolog.Logger
}

func NewGraceWorker(subs usecase.SubscriptionUseCase, interval time.Duration, logger *zerolog.Logger) *GraceWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "GraceWorker").Logger()
	return &GraceWorker{subs: subs, interval: interval, log: &l}
}

func (w *GraceWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting grace period worker")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping grace period worker")
			return ctx.Err()
		case <-t.C:
			start := time.Now()
			res := w.subs.ProcessGracePeriodReminders(ctx)
			metrics.ObserveJob("grace_sweep", start, res.Processed, nil)
			if res.Processed > 0 {
				w.log.Info().
					Int("processed", res.Processed).
					Int("reminders_sent", res.RemindersSent).
					Int("expired", res.Expired).
					Msg("grace sweep finished")
			}
		}
	}
}
