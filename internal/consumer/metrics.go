package consumer

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeProcessed    = "processed"
	outcomeHandlerError = "handler_error"
	outcomeUndecodable  = "undecodable"
)

var (
	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "consumer",
		Name:      "records_total",
		Help:      "Kafka records seen by the audit consumer, labeled by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	lastProcessed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campus_carbon",
		Subsystem: "consumer",
		Name:      "last_processed_timestamp_seconds",
		Help:      "Kafka timestamp of the newest audited record per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(recordsTotal, lastProcessed)
}

func observe(topic, eventType, outcome string) {
	recordsTotal.WithLabelValues(topic, eventType, outcome).Inc()
}
