package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"theglocal-monetization/internal/infra/metrics"
	"theglocal-monetization/internal/usecase"
)

// RetryWorker periodically scans for failed payments whose failure is old
// enough and re-enters them into pending. This covers callbacks that failed
// and processes that crashed mid-confirm; the backoff policy lives here
// (the eligibility window), not in the state machine.
type RetryWorker struct {
	payments   usecase.PaymentUseCase
	interval   time.Duration
	retryAfter int // hours a failure must age before retrying
	log        *zerolog.Logger
}

func NewRetryWorker(payments usecase.PaymentUseCase, interval time.Duration, retryAfterHours int, logger *zerolog.Logger) *RetryWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if retryAfterHours <= 0 {
		retryAfterHours = 6
	}
	l := logger.With().Str("component", "RetryWorker").Logger()
	return &RetryWorker{payments: payments, interval: interval, retryAfter: retryAfterHours, log: &l}
}

func (w *RetryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting payment retry worker")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment retry worker")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RetryWorker) tick(ctx context.Context) {
	start := time.Now()
	eligible := w.payments.FailedForRetry(ctx, w.retryAfter)
	requeued := 0
	for _, p := range eligible {
		if w.payments.Retry(ctx, p.ID) {
			requeued++
		}
	}
	metrics.ObserveJob("payment_retry", start, requeued, nil)
	if len(eligible) > 0 {
		w.log.Info().Int("eligible", len(eligible)).Int("requeued", requeued).Msg("retry sweep finished")
	}
}
