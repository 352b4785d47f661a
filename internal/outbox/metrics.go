package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox events that failed to publish and routed to DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus_carbon",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of outbox events routed to the dead-letter queue, labeled by topic.",
	}, []string{"topic"})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus_carbon",
		Subsystem: "outbox",
		Name:      "pending_events",
		Help:      "Outbox events not yet published, sampled after each batch.",
	})

	// dlqOutcomes counts replay decisions: requeued, retry_scheduled, quarantined.
	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the replay manager, labeled by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus_carbon",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "DLQ entries that are neither replayed nor quarantined.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, pendingGauge, dlqOutcomes, dlqBacklog)
}
