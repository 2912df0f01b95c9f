package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobRunsTotal,
		jobDuration,
		jobItemsProcessed,
	)
}

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker sweeps by worker name and result.",
		},
		[]string{"worker", "result"}, // result: 'ok' | 'error'
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_sweep_seconds",
			Help:    "Duration of one background worker sweep.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	jobItemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_items_processed_total",
			Help: "Records touched by background worker sweeps.",
		},
		[]string{"worker"},
	)
)

func ObserveJob(worker string, start time.Time, items int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobRunsTotal.WithLabelValues(worker, result).Inc()
	jobDuration.WithLabelValues(worker).Observe(time.Since(start).Seconds())
	if items > 0 {
		jobItemsProcessed.WithLabelValues(worker).Add(float64(items))
	}
}
