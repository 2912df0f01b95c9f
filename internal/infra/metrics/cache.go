package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequests) }

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by keyspace and outcome (hit/miss).",
	},
	[]string{"keyspace", "outcome"},
)

func IncCacheRequest(keyspace, outcome string) {
	cacheRequests.WithLabelValues(norm(keyspace), norm(outcome)).Inc()
}
