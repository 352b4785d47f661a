package outbox

import platformevents "github.com/Nissan15/hackathon/internal/platform/events"

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "record_id": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "source_type": {"type": "string"},
    "raw_value": {"type": "number", "minimum": 0},
    "unit": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "date", "source_type", "raw_value", "unit", "recorded_at"],
  "additionalProperties": false
}`

const headcountUpsertedSchema = `{
  "type": "object",
  "title": "HeadcountUpserted",
  "properties": {
    "date": {"type": "string", "format": "date"},
    "humans": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["date", "humans", "occurred_at"],
  "additionalProperties": false
}`

// eventSchemas is the JSON schema registered for each outbox event type.
var eventSchemas = map[string]string{
	platformevents.TypeActivityRecorded:  activityRecordedSchema,
	platformevents.TypeHeadcountUpserted: headcountUpsertedSchema,
}
