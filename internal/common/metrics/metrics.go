// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests by outcome",
		},
		[]string{"outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recommendation_request_duration_seconds",
			Help: "End-to-end recommendation request duration in seconds",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recommendation_stage_duration_seconds",
			Help: "Duration of each pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	ScoringBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_batches_total",
			Help: "Total scoring batches by result source",
		},
		[]string{"source"},
	)

	ScoringRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_retries_total",
			Help: "Total scoring retries by failure reason",
		},
		[]string{"reason"},
	)

	ScoreCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_cache_ops_total",
			Help: "Score cache operations by result",
		},
		[]string{"result"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Upstream call failures by service and error code",
		},
		[]string{"service", "error_code"},
	)
)
