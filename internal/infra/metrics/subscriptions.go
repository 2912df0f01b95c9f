package metrics

import (
	"theglocal-monetization/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gracePeriodsStarted,
		gracePeriodsExpired,
		graceRemindersSent,
		subscriptionsRestored,
		subscriptionsByStatus,
	)
}

var (
	gracePeriodsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grace_periods_started_total",
			Help: "Grace periods started after payment failures.",
		},
	)

	gracePeriodsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grace_periods_expired_total",
			Help: "Grace periods that ran out and expired the subscription.",
		},
	)

	graceRemindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grace_reminders_sent_total",
			Help: "Grace-period reminder notifications by kind (first/final).",
		},
		[]string{"kind"},
	)

	subscriptionsRestored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_restored_total",
			Help: "Subscriptions reactivated after a successful payment.",
		},
	)

	subscriptionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"},
	)
)

func IncGraceStarted() { gracePeriodsStarted.Inc() }

func IncGraceExpired() { gracePeriodsExpired.Inc() }

func IncGraceReminder(kind string) { graceRemindersSent.WithLabelValues(norm(kind)).Inc() }

func IncSubscriptionRestored() { subscriptionsRestored.Inc() }

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusTrial,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusGrace,
		model.SubscriptionStatusExpired,
		model.SubscriptionStatusCancelled,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			subscriptionsByStatus.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}
