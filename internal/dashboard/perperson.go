package dashboard

import (
	"maps"
	"slices"

	"github.com/Nissan15/hackathon/internal/domain"
)

// DailyHumans is one entry of the head-count series.
type DailyHumans struct {
	Date   string
	Humans int
}

// DailyPerPerson is one entry of the per-person series. PerPerson is nil when
// either side of the ratio is unknown.
type DailyPerPerson struct {
	Date      string
	PerPerson *float64
}

// Reconciliation merges the daily emission and head-count series.
type Reconciliation struct {
	Humans           []DailyHumans
	PerPerson        []DailyPerPerson
	TotalHumans      int
	HumanResponsible float64
	// Average is the mean per-person value, zero when no date qualified.
	Average float64
	// HighestDay is empty when no date qualified.
	HighestDay   string
	HighestValue float64
}

// Reconcile walks the union of dates observed in rows and counts in
// ascending order. A per-person figure exists only where both the day's
// emissions and its head-count are positive; the earliest date wins ties for
// the highest figure.
func Reconcile(rows []domain.EmissionRow, counts []domain.HumanCount) Reconciliation {
	daily := make(map[string]float64)
	for _, row := range rows {
		daily[domain.FormatDate(row.Date)] += row.EmissionsTonnes
	}
	humansByDate := make(map[string]int, len(counts))
	for _, c := range counts {
		humansByDate[domain.FormatDate(c.Date)] = c.Humans
	}

	dates := make(map[string]struct{}, len(daily)+len(humansByDate))
	for d := range daily {
		dates[d] = struct{}{}
	}
	for d := range humansByDate {
		dates[d] = struct{}{}
	}

	var (
		rec     Reconciliation
		sum     float64
		counted int
	)
	for _, date := range slices.Sorted(maps.Keys(dates)) {
		humans := humansByDate[date]
		emission := daily[date]
		rec.Humans = append(rec.Humans, DailyHumans{Date: date, Humans: humans})

		switch {
		case humans > 0 && emission > 0:
			perPerson := emission / float64(humans)
			rounded := round4(perPerson)
			rec.PerPerson = append(rec.PerPerson, DailyPerPerson{Date: date, PerPerson: &rounded})
			rec.TotalHumans += humans
			rec.HumanResponsible += perPerson * float64(humans)
			sum += perPerson
			counted++
			if rec.HighestDay == "" || perPerson > rec.HighestValue {
				rec.HighestDay = date
				rec.HighestValue = perPerson
			}
		case emission > 0:
			rec.PerPerson = append(rec.PerPerson, DailyPerPerson{Date: date})
		case humans > 0:
			rec.PerPerson = append(rec.PerPerson, DailyPerPerson{Date: date})
			rec.TotalHumans += humans
		}
	}

	if counted > 0 {
		rec.Average = sum / float64(counted)
	}
	return rec
}
