package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts HTTP requests.
	// Labels: method, path, status
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// requestDuration tracks request latency.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// documentsIngested counts successfully ingested documents.
	documentsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "documents",
			Name:      "ingested_total",
			Help:      "Total number of documents ingested",
		},
	)

	// chatStreams counts chat streams by augmentation outcome.
	// Labels: outcome (context_found, context_empty, retrieval_failed, disabled)
	chatStreams = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "chat",
			Name:      "streams_total",
			Help:      "Total number of chat streams by retrieval outcome",
		},
		[]string{"outcome"},
	)

	// sessionsSwept counts expired sessions purged by the sweeper.
	sessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "sessions",
			Name:      "swept_total",
			Help:      "Total number of expired sessions purged",
		},
	)
)

// RecordSessionsSwept adds purged sessions to the sweep counter. Exposed
// for the sweeper wiring in main.
func RecordSessionsSwept(n int) {
	if n > 0 {
		sessionsSwept.Add(float64(n))
	}
}

func recordRequest(method, path string, status int, seconds float64) {
	requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, path).Observe(seconds)
}
