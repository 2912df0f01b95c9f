package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"theglocal-monetization/internal/infra/metrics"
	"theglocal-monetization/internal/usecase"
)

// CleanupWorker is the retention sweep: it removes terminal failed payment
// rows (budget spent) older than the configured age.
type CleanupWorker struct {
	payments usecase.PaymentUseCase
	interval time.Duration
	daysOld  int
	log      *zerolog.Logger
}

func NewCleanupWorker(payments usecase.PaymentUseCase, interval time.Duration, daysOld int, logger *zerolog.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if daysOld <= 0 {
		daysOld = 90
	}
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{payments: payments, interval: interval, daysOld: daysOld, log: &l}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("days_old", w.daysOld).Msg("starting payment cleanup worker")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment cleanup worker")
			return ctx.Err()
		case <-t.C:
			start := time.Now()
			n := w.payments.CleanupOldFailed(ctx, w.daysOld)
			metrics.ObserveJob("payment_cleanup", start, int(n), nil)
			if n > 0 {
				w.log.Info().Int64("removed", n).Msg("cleanup sweep finished")
			}
		}
	}
}
