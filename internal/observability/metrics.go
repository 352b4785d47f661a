// Package observability registers the Prometheus metrics of the tracker.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dashboard build outcomes.
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidDate        = "invalid_date"
	OutcomeStorageUnavailable = "storage_unavailable"
	OutcomeError              = "error"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus_carbon",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity record persisted.",
	})
	activityIngestedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "ingest",
		Name:      "activity_records_total",
		Help:      "Number of activity records accepted, labeled by source type.",
	}, []string{"source"})
	headcountCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "ingest",
		Name:      "headcount_upserts_total",
		Help:      "Number of daily head-count upserts.",
	})
	dashboardDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus_carbon",
		Subsystem: "dashboard",
		Name:      "build_duration_seconds",
		Help:      "Time spent querying and aggregating a dashboard report.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})
	dashboardOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "dashboard",
		Name:      "builds_total",
		Help:      "Dashboard builds labeled by outcome.",
	}, []string{"outcome"})
	schemaMissingCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campus_carbon",
		Subsystem: "dashboard",
		Name:      "human_count_schema_missing_total",
		Help:      "Dashboard builds that degraded because the human_count table is absent.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, activityIngestedCounter, headcountCounter, dashboardDuration, dashboardOutcomes, schemaMissingCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordActivityIngested counts an accepted record and moves the watermark.
func RecordActivityIngested(source string, ts time.Time) {
	activityIngestedCounter.WithLabelValues(source).Inc()
	RecordActivityPersisted(ts)
}

// RecordHeadcountUpserted counts a head-count write.
func RecordHeadcountUpserted() {
	headcountCounter.Inc()
}

// ObserveDashboardBuild records the latency and outcome of one build.
func ObserveDashboardBuild(outcome string, elapsed time.Duration) {
	dashboardDuration.Observe(elapsed.Seconds())
	dashboardOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSchemaMissing counts a degraded human-count query.
func RecordSchemaMissing() {
	schemaMissingCounter.Inc()
}

// DashboardOutcomes exposes the outcome counter for tests.
func DashboardOutcomes() *prometheus.CounterVec {
	return dashboardOutcomes
}

// SchemaMissingCounter exposes the degraded-query counter for tests.
func SchemaMissingCounter() prometheus.Counter {
	return schemaMissingCounter
}
