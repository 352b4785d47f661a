package dashboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/observability"
	"github.com/Nissan15/hackathon/internal/persistence/memory"
)

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertEmissionFactor(ctx, domain.EmissionFactor{SourceType: "electricity", Factor: 0.5, Unit: "kWh"}))
	require.NoError(t, store.UpsertEmissionFactor(ctx, domain.EmissionFactor{SourceType: "bus_diesel", Factor: 2.5, Unit: "L"}))

	add := func(date, source string, raw float64) {
		d, err := domain.ParseDate(date)
		require.NoError(t, err)
		require.NoError(t, store.InsertActivities(ctx, []domain.ActivityRecord{{ID: date + source, Date: d, SourceType: source, RawValue: raw, Unit: "u"}}))
	}
	add("2024-12-15", "electricity", 1000)
	add("2025-01-01", "electricity", 500)
	add("2025-01-10", "electricity", 1000)
	add("2025-01-20", "bus_diesel", 100)
	add("2025-01-21", "solar", 9999)
	add("2025-02-01", "electricity", 4000)

	for date, humans := range map[string]int{"2025-01-10": 100, "2025-01-15": 80, "2025-01-20": 50} {
		d, err := domain.ParseDate(date)
		require.NoError(t, err)
		require.NoError(t, store.UpsertHumanCount(ctx, domain.HumanCount{Date: d, Humans: humans}))
	}
	return store
}

func TestBuildAggregatesRange(t *testing.T) {
	store := seededStore(t)
	engine := dashboard.NewEngine(store)

	report, err := engine.Build(context.Background(), "2025-01-01", "2025-01-31")
	require.NoError(t, err)

	kpis := report.KPIs
	assert.Equal(t, 1.0, kpis.TotalEmissions)
	assert.Equal(t, 100.0, kpis.PercentChange)
	assert.Equal(t, "electricity", kpis.BiggestSource)
	assert.Equal(t, 75.0, kpis.BiggestSourcePercent)
	assert.Equal(t, 1500.0, kpis.EnergySaved)
	assert.Equal(t, 230, kpis.TotalHumans)
	require.NotNil(t, kpis.AvgPerPersonEmission)
	assert.Equal(t, 0.005, *kpis.AvgPerPersonEmission)
	require.NotNil(t, kpis.HighestPerPersonEmissionDay)
	assert.Equal(t, "2025-01-10", *kpis.HighestPerPersonEmissionDay)
	assert.Equal(t, 0.005, *kpis.HighestPerPersonEmissionValue)

	assert.Equal(t, []dashboard.SourceShare{
		{Source: "bus_diesel", Emissions: 0.25, Percentage: 25},
		{Source: "electricity", Emissions: 0.75, Percentage: 75},
	}, report.SourceBreakdown)
	assert.Equal(t, []dashboard.MonthlyPoint{{Month: "2025-01", Emissions: 1}}, report.MonthlyTrend)
	assert.Equal(t, []dashboard.HumanPoint{
		{Date: "2025-01-01", Humans: 0},
		{Date: "2025-01-10", Humans: 100},
		{Date: "2025-01-15", Humans: 80},
		{Date: "2025-01-20", Humans: 50},
	}, report.DailyHumanCount)
	assert.Equal(t, 1.0, report.EmissionsComparison.TotalOperationalEmissions)
	assert.Equal(t, 0.75, report.EmissionsComparison.TotalHumanResponsibleEmissions)
	assert.Equal(t, 1, store.Released())
}

func TestBuildSwapsReversedRange(t *testing.T) {
	engine := dashboard.NewEngine(seededStore(t))

	forward, err := engine.Build(context.Background(), "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	reversed, err := engine.Build(context.Background(), "2025-01-31", "2025-01-01")
	require.NoError(t, err)

	assert.Equal(t, forward, reversed)
}

func TestBuildIsDeterministic(t *testing.T) {
	engine := dashboard.NewEngine(seededStore(t))

	first, err := engine.Build(context.Background(), "2024-12-01", "2025-02-28")
	require.NoError(t, err)
	second, err := engine.Build(context.Background(), "2024-12-01", "2025-02-28")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBuildEmptyRange(t *testing.T) {
	engine := dashboard.NewEngine(seededStore(t))

	report, err := engine.Build(context.Background(), "2030-01-01", "2030-01-31")
	require.NoError(t, err)

	body, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"kpis": {
			"total_emissions": 0,
			"percent_change": 0,
			"biggest_source": "N/A",
			"biggest_source_percent": 0,
			"energy_saved": 0,
			"total_humans": 0,
			"avg_per_person_emission": null,
			"highest_per_person_emission_day": null,
			"highest_per_person_emission_value": null
		},
		"monthly_trend": [],
		"source_breakdown": [],
		"weekly_comparison": [],
		"yearly_comparison": [],
		"daily_human_count": [],
		"daily_per_person_emission": [],
		"emissions_comparison": {
			"total_operational_emissions": 0,
			"total_human_responsible_emissions": 0
		}
	}`, string(body))
}

func TestBuildDefaultsToTrailingWindow(t *testing.T) {
	now := time.Date(2025, time.February, 10, 9, 0, 0, 0, time.UTC)
	engine := dashboard.NewEngine(seededStore(t), dashboard.WithClock(func() time.Time { return now }), dashboard.WithDefaultWindow(30))

	report, err := engine.Build(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-11", domain.FormatDate(report.Range.Start))
	assert.Equal(t, "2025-02-10", domain.FormatDate(report.Range.End))
	assert.Equal(t, 2.25, report.KPIs.TotalEmissions)
}

func TestBuildDegradesWhenHumanCountTableMissing(t *testing.T) {
	store := seededStore(t)
	store.DropHumanCounts()
	engine := dashboard.NewEngine(store)
	before := testutil.ToFloat64(observability.SchemaMissingCounter())

	report, err := engine.Build(context.Background(), "2025-01-01", "2025-01-31")
	require.NoError(t, err)

	assert.Equal(t, 1.0, report.KPIs.TotalEmissions)
	assert.Zero(t, report.KPIs.TotalHumans)
	assert.Nil(t, report.KPIs.AvgPerPersonEmission)
	assert.Nil(t, report.KPIs.HighestPerPersonEmissionDay)
	for _, point := range report.DailyHumanCount {
		assert.Zero(t, point.Humans)
	}
	for _, point := range report.DailyPerPersonEmission {
		assert.Nil(t, point.PerPersonEmission)
	}
	assert.Equal(t, before+1, testutil.ToFloat64(observability.SchemaMissingCounter()))
}

func TestBuildFailsWhenStorageUnavailable(t *testing.T) {
	store := seededStore(t)
	store.FailAcquire(errors.New("connection refused"))

	_, err := dashboard.NewEngine(store).Build(context.Background(), "2025-01-01", "2025-01-31")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Zero(t, store.Released())
}

func TestBuildFailsWhenQueryFails(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
	}{
		{name: "current window rows", succeeded: 0},
		{name: "previous window rows", succeeded: 1},
		{name: "human counts", succeeded: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t)
			store.FailQueriesAfter(tt.succeeded, errors.New("server closed the connection unexpectedly"))

			report, err := dashboard.NewEngine(store).Build(context.Background(), "2025-01-01", "2025-01-31")
			require.ErrorIs(t, err, domain.ErrStorageUnavailable)
			assert.False(t, errors.Is(err, domain.ErrSchemaMissing))
			assert.Equal(t, dashboard.Report{}, report)
			assert.Equal(t, 1, store.Released())
		})
	}
}

func TestRowsFailsWhenQueryFails(t *testing.T) {
	store := seededStore(t)
	store.FailQueries(errors.New("i/o timeout"))

	_, rows, err := dashboard.NewEngine(store).Rows(context.Background(), "2025-01-01", "2025-01-31")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Nil(t, rows)
	assert.Equal(t, 1, store.Released())
}

func TestBuildRejectsNonFiniteTotals(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.UpsertEmissionFactor(ctx, domain.EmissionFactor{SourceType: "electricity", Factor: 1e300, Unit: "kWh"}))
	day, err := domain.ParseDate("2025-01-10")
	require.NoError(t, err)
	require.NoError(t, store.InsertActivities(ctx, []domain.ActivityRecord{
		{ID: "huge", Date: day, SourceType: "electricity", RawValue: 1e308, Unit: "kWh"},
	}))
	before := testutil.ToFloat64(observability.DashboardOutcomes().WithLabelValues(observability.OutcomeError))

	report, err := dashboard.NewEngine(store).Build(ctx, "2025-01-01", "2025-01-31")
	require.ErrorIs(t, err, domain.ErrComputation)
	assert.Contains(t, err.Error(), "not finite")
	assert.Equal(t, dashboard.Report{}, report)
	assert.Equal(t, 1, store.Released())
	assert.Equal(t, before+1, testutil.ToFloat64(observability.DashboardOutcomes().WithLabelValues(observability.OutcomeError)))
}

func TestBuildRejectsInvalidDates(t *testing.T) {
	store := seededStore(t)
	before := testutil.ToFloat64(observability.DashboardOutcomes().WithLabelValues(observability.OutcomeInvalidDate))

	_, err := dashboard.NewEngine(store).Build(context.Background(), "2025-01-01", "31/01/2025")
	require.ErrorIs(t, err, domain.ErrInvalidDateFormat)
	assert.Zero(t, store.Released())
	assert.Equal(t, before+1, testutil.ToFloat64(observability.DashboardOutcomes().WithLabelValues(observability.OutcomeInvalidDate)))
}

func TestRowsReturnsJoinedRange(t *testing.T) {
	store := seededStore(t)
	engine := dashboard.NewEngine(store)

	rng, rows, err := engine.Rows(context.Background(), "2025-01-31", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", domain.FormatDate(rng.Start))
	require.Len(t, rows, 3)
	assert.Equal(t, "electricity", rows[0].SourceType)
	assert.Equal(t, "bus_diesel", rows[2].SourceType)
	assert.Equal(t, 1, store.Released())
}
