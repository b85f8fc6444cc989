package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notify_messages_enqueued_total", Help: "Messages accepted by the queue backend"},
	)
	BatchesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notify_batches_submitted_total", Help: "Sub-batches submitted to the queue backend"},
	)
	RequestsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notify_requests_rejected_total", Help: "Campaign requests rejected before enqueue"},
		[]string{"reason"},
	)
	PartialFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notify_partial_failures_total", Help: "Sub-batches with at least one failed entry"},
	)
	MessageSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_message_size_bytes",
			Help:    "Serialized queue message size",
			Buckets: prometheus.ExponentialBuckets(512, 2, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration,
		MessagesEnqueuedTotal, BatchesSubmittedTotal, RequestsRejectedTotal,
		PartialFailuresTotal, MessageSizeBytes,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
