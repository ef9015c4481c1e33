// Domain metrics for the sync engine, the analysis cache, and the outreach
// sweep. Label cardinality is kept to small enumerable sets (cache kind,
// sweep outcome).
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	syncReviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_reviews_total",
			Help: "Reviews seen by the sync engine, by outcome (saved|skipped).",
		},
		[]string{"outcome"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Completed sync runs by terminal job status (done|failed).",
		},
		[]string{"status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_lookups_total",
			Help: "Analysis cache lookups by kind and result (hit|stale|miss).",
		},
		[]string{"kind", "result"},
	)

	sweepDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_deliveries_total",
			Help: "Outreach sweep delivery attempts by outcome (sent|failed).",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(syncReviews, syncRuns, cacheLookups, sweepDeliveries)
}
