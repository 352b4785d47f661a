// Package events defines the payloads published for every accepted write.
package events

import "time"

// Event types carried in the outbox and on Kafka headers.
const (
	TypeActivityRecorded  = "activity.recorded"
	TypeHeadcountUpserted = "headcount.upserted"
)

// ActivityRecorded is emitted when an activity record is stored.
type ActivityRecorded struct {
	RecordID   string    `json:"record_id"`
	Date       string    `json:"date"`
	SourceType string    `json:"source_type"`
	RawValue   float64   `json:"raw_value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HeadcountUpserted is emitted when a day's head-count is written.
type HeadcountUpserted struct {
	Date       string    `json:"date"`
	Humans     int       `json:"humans"`
	OccurredAt time.Time `json:"occurred_at"`
}
