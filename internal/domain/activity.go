package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date wire format used by every API and store.
const DateLayout = "2006-01-02"

// ActivityRecord is one raw measurement of an emitting activity on a date.
type ActivityRecord struct {
	ID         string
	Date       time.Time
	SourceType string
	RawValue   float64
	Unit       string
	CreatedAt  time.Time
}

// EmissionFactor converts one unit of a source's raw value into kg CO2e.
type EmissionFactor struct {
	SourceType string
	Factor     float64
	Unit       string
}

// HumanCount is the campus head-count for a single date.
type HumanCount struct {
	Date   time.Time
	Humans int
}

// EmissionRow is an activity record joined with its source's emission factor.
type EmissionRow struct {
	Date            time.Time
	SourceType      string
	RawValue        float64
	Unit            string
	Factor          float64
	EmissionsTonnes float64
}

// NewEmissionRow computes tonnes CO2e from a raw value and its kg-per-unit factor.
func NewEmissionRow(date time.Time, source string, raw float64, unit string, factor float64) EmissionRow {
	return EmissionRow{
		Date:            date,
		SourceType:      source,
		RawValue:        raw,
		Unit:            unit,
		Factor:          factor,
		EmissionsTonnes: raw * factor / 1000,
	}
}

// SourceTotal is the summed emissions of one source.
type SourceTotal struct {
	Source    string
	Emissions float64
}

// User is an operator allowed to submit data.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
}

// ParseDate parses a YYYY-MM-DD calendar date into UTC midnight.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, value)
	}
	return parsed, nil
}

// FormatDate renders a date in the wire format.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
