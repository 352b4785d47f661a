// Package report renders dashboard reports for terminals and exports emission
// rows for offline analysis.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/greenops"
)

// TableOptions tunes WriteTable.
type TableOptions struct {
	UseColors bool
}

// WriteTable prints the headline figures, the source breakdown and the monthly
// trend of r.
func WriteTable(w io.Writer, r dashboard.Report, opts TableOptions) error {
	if _, err := fmt.Fprintf(w, "Campus emissions %s to %s\n\n",
		domain.FormatDate(r.Range.Start), domain.FormatDate(r.Range.End)); err != nil {
		return err
	}
	if err := writeKPIs(w, r.KPIs, opts); err != nil {
		return err
	}
	if err := writeSources(w, r.SourceBreakdown); err != nil {
		return err
	}
	if err := writeMonthly(w, r.MonthlyTrend); err != nil {
		return err
	}

	eq, err := greenops.FromTonnes(r.KPIs.TotalEmissions)
	if err != nil {
		return err
	}
	if !eq.Empty {
		if _, err := fmt.Fprintln(w, eq.DisplayText); err != nil {
			return err
		}
	}
	return nil
}

func writeKPIs(w io.Writer, k dashboard.KPIs, opts TableOptions) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Metric", "Value"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignRight}
	})

	data := [][]string{
		{"Total emissions (t CO2e)", formatFloat(k.TotalEmissions, 2)},
		{"Change vs previous period", percentChange(k.PercentChange, opts.UseColors)},
		{"Biggest source", orDash(k.BiggestSource)},
		{"Biggest source share", formatFloat(k.BiggestSourcePercent, 1) + "%"},
		{"Energy saved (kWh)", formatFloat(k.EnergySaved, 0)},
		{"Total people counted", strconv.Itoa(k.TotalHumans)},
		{"Average per person (t)", optionalFloat(k.AvgPerPersonEmission)},
	}
	if k.HighestPerPersonEmissionDay != nil {
		data = append(data, []string{"Highest per-person day", *k.HighestPerPersonEmissionDay + " (" + optionalFloat(k.HighestPerPersonEmissionValue) + ")"})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeSources(w io.Writer, sources []dashboard.SourceShare) error {
	if len(sources) == 0 {
		_, err := fmt.Fprintln(w, "No emission data in range.")
		return err
	}
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Source", "Emissions (t)", "Share"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(sources))
	for _, s := range sources {
		data = append(data, []string{s.Source, formatFloat(s.Emissions, 2), formatFloat(s.Percentage, 1) + "%"})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeMonthly(w io.Writer, months []dashboard.MonthlyPoint) error {
	if len(months) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Month", "Emissions (t)"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(months))
	for _, m := range months {
		data = append(data, []string{m.Month, formatFloat(m.Emissions, 2)})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// percentChange colours increases red and decreases green.
func percentChange(v float64, useColors bool) string {
	red, green := fmt.Sprint, fmt.Sprint
	if useColors {
		red = color.New(color.FgRed).SprintFunc()
		green = color.New(color.FgGreen).SprintFunc()
	}
	switch {
	case v > 0:
		return red(fmt.Sprintf("+%.2f%% ▲", v))
	case v < 0:
		return green(fmt.Sprintf("%.2f%% ▼", v))
	default:
		return "0.00%"
	}
}

func formatFloat(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(*v, 4)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
