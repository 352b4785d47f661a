package dashboard

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Nissan15/hackathon/internal/domain"
)

// ElectricitySource is the source whose raw values feed the energy KPI.
const ElectricitySource = "electricity"

// NoSource labels biggest_source when the range has no emissions.
const NoSource = "N/A"

// Bucket is a labelled emissions total.
type Bucket struct {
	Label     string
	Emissions float64
}

// YearBucket is a calendar-year emissions total.
type YearBucket struct {
	Year      int
	Emissions float64
}

// Summary holds the unrounded aggregates of one set of emission rows.
type Summary struct {
	Total       float64
	Sources     []domain.SourceTotal
	Biggest     domain.SourceTotal
	Monthly     []Bucket
	Weekly      []Bucket
	Yearly      []YearBucket
	EnergySaved float64
}

// Summarize totals rows overall, per source and per month, ISO week and year.
// Sources are ordered by name; the biggest source is the first of the maxima
// in that order.
func Summarize(rows []domain.EmissionRow) Summary {
	bySource := make(map[string]float64)
	byMonth := make(map[string]float64)
	byWeek := make(map[string]float64)
	byYear := make(map[int]float64)

	var s Summary
	for _, row := range rows {
		s.Total += row.EmissionsTonnes
		bySource[row.SourceType] += row.EmissionsTonnes
		byMonth[row.Date.Format("2006-01")] += row.EmissionsTonnes
		byWeek[isoWeekLabel(row)] += row.EmissionsTonnes
		byYear[row.Date.Year()] += row.EmissionsTonnes
		if row.SourceType == ElectricitySource {
			s.EnergySaved += row.RawValue
		}
	}

	s.Biggest = domain.SourceTotal{Source: NoSource}
	for _, name := range slices.Sorted(maps.Keys(bySource)) {
		total := bySource[name]
		s.Sources = append(s.Sources, domain.SourceTotal{Source: name, Emissions: total})
		if len(s.Sources) == 1 || total > s.Biggest.Emissions {
			s.Biggest = domain.SourceTotal{Source: name, Emissions: total}
		}
	}
	for _, label := range slices.Sorted(maps.Keys(byMonth)) {
		s.Monthly = append(s.Monthly, Bucket{Label: label, Emissions: byMonth[label]})
	}
	for _, label := range slices.Sorted(maps.Keys(byWeek)) {
		s.Weekly = append(s.Weekly, Bucket{Label: label, Emissions: byWeek[label]})
	}
	for _, year := range slices.Sorted(maps.Keys(byYear)) {
		s.Yearly = append(s.Yearly, YearBucket{Year: year, Emissions: byYear[year]})
	}
	return s
}

// PercentChange compares current against previous, treating a non-positive
// baseline as no change.
func PercentChange(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

func isoWeekLabel(row domain.EmissionRow) string {
	year, week := row.Date.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
