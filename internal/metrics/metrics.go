// Package metrics declares the Prometheus collectors shared by jobwatch components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// FeedMessages counts decoded messages per feed.
	FeedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobwatch_feed_messages_total", Help: "Decoded messages received per feed"},
		[]string{"source"},
	)
	// FeedDecodeErrors counts frames or event lines that were not valid JSON.
	FeedDecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobwatch_feed_decode_errors_total", Help: "Frames that were not valid JSON"},
		[]string{"source"},
	)
	// FeedReconnects counts connection failures that were followed by a retry.
	FeedReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobwatch_feed_reconnects_total", Help: "Connection failures followed by a retry"},
		[]string{"source"},
	)
	// FeedConnected is 1 while a feed session is up and 0 otherwise.
	FeedConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "jobwatch_feed_connected", Help: "1 while the feed session is up"},
		[]string{"source"},
	)
	// Normalized counts canonicalization outcomes (ok or dropped) per source type.
	Normalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobwatch_normalize_total", Help: "Canonicalization outcomes"},
		[]string{"source_type", "status"},
	)
	// HistoryLength is the number of jobs currently held per source.
	HistoryLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "jobwatch_history_length", Help: "Jobs held per source"},
		[]string{"source"},
	)
	// Divergences counts divergence records per source pair.
	Divergences = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobwatch_divergences_total", Help: "Divergence records appended"},
		[]string{"source_1", "source_2"},
	)
	// SinkWrites counts divergence sink writes by outcome.
	SinkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobwatch_sink_writes_total", Help: "Divergence sink write attempts"},
		[]string{"status"},
	)
	// SinkDuration observes divergence sink write latency, retries included.
	SinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "jobwatch_sink_write_duration_seconds", Help: "Divergence sink write latency", Buckets: prometheus.DefBuckets},
		[]string{"status"},
	)
	// HTTPRequests counts HTTP requests by method, path and status class.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration observes HTTP request latency.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
	// RateLimitHits counts API requests rejected by the per-IP limit.
	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "jobwatch_api_rate_limit_total", Help: "API requests rejected by the per-IP limit"},
	)
)

func init() {
	prometheus.MustRegister(
		FeedMessages, FeedDecodeErrors, FeedReconnects, FeedConnected,
		Normalized, HistoryLength, Divergences,
		SinkWrites, SinkDuration,
		HTTPRequests, HTTPDuration, RateLimitHits,
	)
}
