package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentTransitionsTotal,
		paymentTransitionsRejected,
		paymentRetriesTotal,
		paymentRevenueTotal,
	)
}

var (
	paymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Applied payment state transitions, labeled by target status.",
		},
		[]string{"to"},
	)

	paymentTransitionsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_transitions_rejected_total",
			Help: "Transitions rejected by the lifecycle table.",
		},
	)

	paymentRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_retries_total",
			Help: "Retry attempts by outcome (requeued/budget_exhausted/not_failed).",
		},
		[]string{"outcome"},
	)

	paymentRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_revenue_total",
			Help: "Total monetary value of completed payments, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncPaymentTransition(to string) { paymentTransitionsTotal.WithLabelValues(norm(to)).Inc() }

func IncPaymentTransitionRejected() { paymentTransitionsRejected.Inc() }

func IncPaymentRetry(outcome string) { paymentRetriesTotal.WithLabelValues(norm(outcome)).Inc() }

func AddPaymentRevenue(currency string, amount int64) {
	paymentRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
