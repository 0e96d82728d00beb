package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensai_ingest_requests_total",
			Help: "Total number of HTTP requests by method and response status",
		},
		[]string{"method", "status"},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lensai_ingest_request_duration_seconds",
			Help:    "Duration of event POST handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensai_ingest_events_total",
			Help: "Total number of events by outcome",
		},
		[]string{"outcome"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensai_ingest_event_bytes_total",
			Help: "Total bytes appended to partition objects",
		},
	)

	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensai_ingest_validation_errors_total",
			Help: "Total number of validation issues by code",
		},
		[]string{"code"},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensai_ingest_auth_failures_total",
			Help: "Total number of requests rejected by the verifier",
		},
	)

	// Storage metrics
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lensai_ingest_store_append_duration_seconds",
			Help:    "Duration of object store appends in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensai_ingest_store_errors_total",
			Help: "Total number of failed object store appends",
		},
		[]string{"backend"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lensai_ingest_store_retries_total",
			Help: "Total number of retried object store appends",
		},
		[]string{"backend"},
	)

	// DLQ metrics
	DLQPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensai_ingest_dlq_published_total",
			Help: "Total number of events written to the dead-letter queue",
		},
	)

	DLQErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensai_ingest_dlq_errors_total",
			Help: "Total number of failed dead-letter queue writes",
		},
	)

	// Rate limiting metrics
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensai_ingest_rate_limited_total",
			Help: "Total number of events rejected by the per-project rate limit",
		},
	)

	RateLimitErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lensai_ingest_rate_limit_errors_total",
			Help: "Total number of rate limit checks that failed and were admitted",
		},
	)
)
