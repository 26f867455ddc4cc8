package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbnlq_pipeline_requests_total",
			Help: "Total number of operations served, by operation and outcome kind.",
		},
		[]string{"operation", "outcome"},
	)

	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbnlq_pipeline_stage_duration_seconds",
			Help:    "Latency of each natural-language query pipeline stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	generationRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbnlq_generation_retries_total",
			Help: "Number of generation backend calls retried after a transient failure.",
		},
	)

	schemaCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbnlq_schema_cache_lookups_total",
			Help: "Schema cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		pipelineStageDurationSeconds,
		generationRetriesTotal,
		schemaCacheLookupsTotal,
	)
}

// ObserveRequest counts one served operation. outcome is "ok" or an error kind.
func ObserveRequest(operation, outcome string) {
	pipelineRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func IncGenerationRetry() {
	generationRetriesTotal.Inc()
}

// ObserveSchemaCache records a cache hit (true) or miss (false).
func ObserveSchemaCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	schemaCacheLookupsTotal.WithLabelValues(result).Inc()
}
