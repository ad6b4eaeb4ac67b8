package metrics

import "github.com/prometheus/client_golang/prometheus"

var HttpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"endpoint", "status", "method"},
)

var HttpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"endpoint", "method"},
)

var WebhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Webhook deliveries by receiver outcome",
	},
	[]string{"outcome"},
)

var QueuePublishFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_publish_failures_total",
		Help: "Envelopes the receiver failed to enqueue",
	},
	[]string{"driver"},
)

var EventsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_events_processed_total",
		Help: "Status and message events by category and outcome",
	},
	[]string{"category", "outcome"},
)

var BatchDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "webhook_batch_duration_seconds",
		Help:    "Time taken to process one queue batch",
		Buckets: prometheus.DefBuckets,
	},
)

var BatchItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_batch_items_total",
		Help: "Queue items by batch outcome",
	},
	[]string{"outcome"},
)

var QueueRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_retries_total",
		Help: "Items redelivered after a failed batch",
	},
	[]string{"driver"},
)

var QueueDeadLetteredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_dead_lettered_total",
		Help: "Items moved to the dead-letter queue",
	},
	[]string{"driver"},
)

func InitAPIMetrics() {
	prometheus.MustRegister(HttpRequestsTotal)
	prometheus.MustRegister(HttpRequestDuration)
	prometheus.MustRegister(WebhooksReceivedTotal)
	prometheus.MustRegister(QueuePublishFailuresTotal)
}

func InitWorkerMetrics() {
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(BatchItemsTotal)
	prometheus.MustRegister(QueueRetriesTotal)
	prometheus.MustRegister(QueueDeadLetteredTotal)
}
