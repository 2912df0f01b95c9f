package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		conflictsDetected,
		conflictsResolved,
		conflictResolutionSeconds,
	)
}

var (
	conflictsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflicts_detected_total",
			Help: "Record conflicts detected, labeled by conflict type.",
		},
		[]string{"type"},
	)

	conflictsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflicts_resolved_total",
			Help: "Conflict outcomes by resolution path (auto/manual/escalated).",
		},
		[]string{"path"},
	)

	conflictResolutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conflict_resolution_seconds",
			Help:    "Latency from conflict detection to resolution.",
			Buckets: prometheus.ExponentialBuckets(0.001, 10, 8),
		},
	)
)

func IncConflictDetected(conflictType string) {
	conflictsDetected.WithLabelValues(norm(conflictType)).Inc()
}

func IncConflictResolved(path string) { conflictsResolved.WithLabelValues(norm(path)).Inc() }

func ObserveConflictResolution(seconds float64) { conflictResolutionSeconds.Observe(seconds) }
