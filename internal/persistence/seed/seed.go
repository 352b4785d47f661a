// Package seed loads the reference factors, the default operator and a sample
// dataset into an empty store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nissan15/hackathon/internal/auth"
	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
)

// Store is everything the seeder writes to or reads back.
type Store interface {
	domain.Repository
	dashboard.Store
	auth.UserStore
}

// DefaultFactors are kg CO2e per raw unit.
var DefaultFactors = []domain.EmissionFactor{
	{SourceType: "electricity", Factor: 0.82, Unit: "kWh"},
	{SourceType: "bus_diesel", Factor: 2.68, Unit: "Liters"},
	{SourceType: "canteen_lpg", Factor: 2.98, Unit: "kg"},
	{SourceType: "waste_landfill", Factor: 0.58, Unit: "kg"},
}

type sampleActivity struct {
	date   string
	source string
	value  float64
	unit   string
}

var sampleActivities = []sampleActivity{
	{"2025-01-15", "electricity", 120000, "kWh"},
	{"2025-02-15", "electricity", 115000, "kWh"},
	{"2025-03-15", "electricity", 118000, "kWh"},
	{"2025-04-15", "electricity", 122000, "kWh"},
	{"2025-05-15", "electricity", 125000, "kWh"},
	{"2025-06-15", "electricity", 130000, "kWh"},
	{"2025-01-15", "bus_diesel", 5000, "Liters"},
	{"2025-02-15", "bus_diesel", 4800, "Liters"},
	{"2025-03-15", "bus_diesel", 5200, "Liters"},
	{"2025-04-15", "bus_diesel", 5100, "Liters"},
	{"2025-05-15", "bus_diesel", 5300, "Liters"},
	{"2025-06-15", "bus_diesel", 5500, "Liters"},
	{"2025-01-15", "canteen_lpg", 800, "kg"},
	{"2025-02-15", "canteen_lpg", 750, "kg"},
	{"2025-03-15", "canteen_lpg", 820, "kg"},
	{"2025-04-15", "canteen_lpg", 810, "kg"},
	{"2025-05-15", "canteen_lpg", 830, "kg"},
	{"2025-06-15", "canteen_lpg", 850, "kg"},
	{"2025-01-15", "waste_landfill", 2000, "kg"},
	{"2025-02-15", "waste_landfill", 1900, "kg"},
	{"2025-03-15", "waste_landfill", 2100, "kg"},
	{"2025-04-15", "waste_landfill", 2050, "kg"},
	{"2025-05-15", "waste_landfill", 2200, "kg"},
	{"2025-06-15", "waste_landfill", 2300, "kg"},
	{"2024-01-15", "electricity", 110000, "kWh"},
	{"2024-02-15", "electricity", 108000, "kWh"},
	{"2024-03-15", "electricity", 112000, "kWh"},
	{"2024-04-15", "electricity", 115000, "kWh"},
	{"2024-05-15", "electricity", 118000, "kWh"},
	{"2024-06-15", "electricity", 120000, "kWh"},
}

var sampleHeadcounts = []struct {
	date   string
	humans int
}{
	{"2025-01-15", 2500},
	{"2025-02-15", 2450},
	{"2025-03-15", 2550},
	{"2025-04-15", 2520},
	{"2025-05-15", 2580},
	{"2025-06-15", 2600},
	{"2024-01-15", 2400},
	{"2024-02-15", 2380},
	{"2024-03-15", 2420},
	{"2024-04-15", 2450},
	{"2024-05-15", 2480},
	{"2024-06-15", 2500},
}

// Sample data spans these dates inclusive.
var (
	sampleStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sampleEnd   = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Result reports what a run wrote.
type Result struct {
	FactorsAdded int
	AdminCreated bool
	Activities   int
	Headcounts   int
}

// Seeder fills a store. Every step is skipped when its data is already present.
type Seeder struct {
	store   Store
	service *domain.Service
	authn   *auth.Authenticator
	logger  zerolog.Logger
}

// New constructs a Seeder.
func New(store Store, authn *auth.Authenticator, logger zerolog.Logger) *Seeder {
	return &Seeder{store: store, service: domain.NewService(store), authn: authn, logger: logger}
}

// Run executes every seeding step in order.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result
	var err error

	if res.FactorsAdded, err = s.factors(ctx); err != nil {
		return res, fmt.Errorf("seed factors: %w", err)
	}
	if res.AdminCreated, err = s.admin(ctx); err != nil {
		return res, fmt.Errorf("seed admin: %w", err)
	}

	rows, counts, err := s.existing(ctx)
	if err != nil {
		return res, err
	}
	if rows == 0 {
		if res.Activities, err = s.activities(ctx); err != nil {
			return res, fmt.Errorf("seed activities: %w", err)
		}
	} else {
		s.logger.Info().Int("rows", rows).Msg("sample activity data already present")
	}
	if counts == 0 {
		if res.Headcounts, err = s.headcounts(ctx); err != nil {
			return res, fmt.Errorf("seed headcounts: %w", err)
		}
	} else {
		s.logger.Info().Int("days", counts).Msg("sample headcounts already present")
	}

	s.logger.Info().
		Int("factors", res.FactorsAdded).
		Bool("admin_created", res.AdminCreated).
		Int("activities", res.Activities).
		Int("headcounts", res.Headcounts).
		Msg("seed complete")
	return res, nil
}

// factors adds the defaults for sources that have no factor yet.
func (s *Seeder) factors(ctx context.Context) (int, error) {
	current, err := s.service.EmissionFactors(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]struct{}, len(current))
	for _, f := range current {
		have[f.SourceType] = struct{}{}
	}

	added := 0
	for _, f := range DefaultFactors {
		if _, ok := have[f.SourceType]; ok {
			continue
		}
		if err := s.service.SetEmissionFactor(ctx, f); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (s *Seeder) admin(ctx context.Context) (bool, error) {
	_, err := s.store.FindUser(ctx, auth.AdminUsername)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return false, err
	}
	if err := s.authn.ResetAdmin(ctx); err != nil {
		return false, err
	}
	s.logger.Warn().Str("username", auth.AdminUsername).Msg("default admin created, change its password")
	return true, nil
}

// existing counts sample-window data. The connection is released before any
// write because single-connection stores would otherwise block.
func (s *Seeder) existing(ctx context.Context) (int, int, error) {
	conn, err := s.store.Acquire(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Release()

	rows, err := conn.EmissionRows(ctx, sampleStart, sampleEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("count activities: %w", err)
	}
	counts, err := conn.HumanCounts(ctx, sampleStart, sampleEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("count headcounts: %w", err)
	}
	return len(rows), len(counts), nil
}

func (s *Seeder) activities(ctx context.Context) (int, error) {
	inputs := make([]domain.RecordActivityInput, 0, len(sampleActivities))
	for _, a := range sampleActivities {
		value := a.value
		inputs = append(inputs, domain.RecordActivityInput{Date: a.date, SourceType: a.source, RawValue: &value, Unit: a.unit})
	}
	records, err := s.service.ImportActivities(ctx, inputs)
	return len(records), err
}

func (s *Seeder) headcounts(ctx context.Context) (int, error) {
	for i, h := range sampleHeadcounts {
		if _, err := s.service.UpsertHumanCount(ctx, h.date, h.humans); err != nil {
			return i, err
		}
	}
	return len(sampleHeadcounts), nil
}
