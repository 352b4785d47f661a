package dashboard

// Report is the consolidated dashboard payload.
type Report struct {
	KPIs                   KPIs               `json:"kpis"`
	MonthlyTrend           []MonthlyPoint     `json:"monthly_trend"`
	SourceBreakdown        []SourceShare      `json:"source_breakdown"`
	WeeklyComparison       []WeeklyPoint      `json:"weekly_comparison"`
	YearlyComparison       []YearlyPoint      `json:"yearly_comparison"`
	DailyHumanCount        []HumanPoint       `json:"daily_human_count"`
	DailyPerPersonEmission []PerPersonPoint   `json:"daily_per_person_emission"`
	EmissionsComparison    EmissionComparison `json:"emissions_comparison"`

	Range DateRange `json:"-"`
}

// KPIs are the headline figures of a report.
type KPIs struct {
	TotalEmissions                float64  `json:"total_emissions"`
	PercentChange                 float64  `json:"percent_change"`
	BiggestSource                 string   `json:"biggest_source"`
	BiggestSourcePercent          float64  `json:"biggest_source_percent"`
	EnergySaved                   float64  `json:"energy_saved"`
	TotalHumans                   int      `json:"total_humans"`
	AvgPerPersonEmission          *float64 `json:"avg_per_person_emission"`
	HighestPerPersonEmissionDay   *string  `json:"highest_per_person_emission_day"`
	HighestPerPersonEmissionValue *float64 `json:"highest_per_person_emission_value"`
}

// MonthlyPoint is a YYYY-MM emissions bucket.
type MonthlyPoint struct {
	Month     string  `json:"month"`
	Emissions float64 `json:"emissions"`
}

// SourceShare is one source's total and share of the range total.
type SourceShare struct {
	Source     string  `json:"source"`
	Emissions  float64 `json:"emissions"`
	Percentage float64 `json:"percentage"`
}

// WeeklyPoint is an ISO-week emissions bucket.
type WeeklyPoint struct {
	Label     string  `json:"label"`
	Emissions float64 `json:"emissions"`
}

// YearlyPoint is a calendar-year emissions bucket.
type YearlyPoint struct {
	Year      int     `json:"year"`
	Emissions float64 `json:"emissions"`
}

// HumanPoint is one day of the head-count series.
type HumanPoint struct {
	Date   string `json:"date"`
	Humans int    `json:"humans"`
}

// PerPersonPoint is one day of the per-person series.
type PerPersonPoint struct {
	Date              string   `json:"date"`
	PerPersonEmission *float64 `json:"per_person_emission"`
}

// EmissionComparison contrasts operational emissions with the share
// attributable to counted people.
type EmissionComparison struct {
	TotalOperationalEmissions      float64 `json:"total_operational_emissions"`
	TotalHumanResponsibleEmissions float64 `json:"total_human_responsible_emissions"`
}

// Assemble rounds and shapes the aggregates of one range into a Report.
func Assemble(rng DateRange, current Summary, previousTotal float64, rec Reconciliation) Report {
	report := Report{
		KPIs: KPIs{
			TotalEmissions:       round2(current.Total),
			PercentChange:        round2(PercentChange(current.Total, previousTotal)),
			BiggestSource:        current.Biggest.Source,
			BiggestSourcePercent: share(current.Biggest.Emissions, current.Total),
			EnergySaved:          round(current.EnergySaved, 0),
			TotalHumans:          rec.TotalHumans,
		},
		MonthlyTrend:           make([]MonthlyPoint, 0, len(current.Monthly)),
		SourceBreakdown:        make([]SourceShare, 0, len(current.Sources)),
		WeeklyComparison:       make([]WeeklyPoint, 0, len(current.Weekly)),
		YearlyComparison:       make([]YearlyPoint, 0, len(current.Yearly)),
		DailyHumanCount:        make([]HumanPoint, 0, len(rec.Humans)),
		DailyPerPersonEmission: make([]PerPersonPoint, 0, len(rec.PerPerson)),
		EmissionsComparison: EmissionComparison{
			TotalOperationalEmissions:      round2(current.Total),
			TotalHumanResponsibleEmissions: round2(rec.HumanResponsible),
		},
		Range: rng,
	}

	if rec.Average > 0 {
		avg := round4(rec.Average)
		report.KPIs.AvgPerPersonEmission = &avg
	}
	if rec.HighestDay != "" {
		day := rec.HighestDay
		value := round4(rec.HighestValue)
		report.KPIs.HighestPerPersonEmissionDay = &day
		report.KPIs.HighestPerPersonEmissionValue = &value
	}

	for _, b := range current.Monthly {
		report.MonthlyTrend = append(report.MonthlyTrend, MonthlyPoint{Month: b.Label, Emissions: round2(b.Emissions)})
	}
	for _, s := range current.Sources {
		report.SourceBreakdown = append(report.SourceBreakdown, SourceShare{
			Source:     s.Source,
			Emissions:  round2(s.Emissions),
			Percentage: share(s.Emissions, current.Total),
		})
	}
	for _, b := range current.Weekly {
		report.WeeklyComparison = append(report.WeeklyComparison, WeeklyPoint{Label: b.Label, Emissions: round2(b.Emissions)})
	}
	for _, b := range current.Yearly {
		report.YearlyComparison = append(report.YearlyComparison, YearlyPoint{Year: b.Year, Emissions: round2(b.Emissions)})
	}
	for _, h := range rec.Humans {
		report.DailyHumanCount = append(report.DailyHumanCount, HumanPoint{Date: h.Date, Humans: h.Humans})
	}
	for _, p := range rec.PerPerson {
		report.DailyPerPersonEmission = append(report.DailyPerPersonEmission, PerPersonPoint{Date: p.Date, PerPersonEmission: p.PerPerson})
	}
	return report
}
