// Package metrics holds the Prometheus collectors for fmlearn. Collectors are
// registered with the default registry and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	RecordsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fmlearn_records_ingested_total",
			Help: "Total number of metric records persisted",
		},
	)

	// Training
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmlearn_training_runs_total",
			Help: "Total number of training passes by result",
		},
		[]string{"result"}, // "success", "failure"
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fmlearn_training_duration_seconds",
			Help:    "Duration of training passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TrainingRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fmlearn_training_rows",
			Help: "Number of rows in the most recent successful training table",
		},
	)

	// Recommendations
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmlearn_recommendations_total",
			Help: "Total number of recommendation requests by outcome",
		},
		[]string{"status"}, // "ok", "not_trained", "unavailable", "error"
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fmlearn_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fmlearn_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fmlearn_api_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)
