// Package dashboard aggregates activity emissions and head-counts into the
// campus dashboard report.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/observability"
)

// Conn is a store connection held for the duration of one report build.
// Both queries use inclusive bounds and return rows ordered by date.
type Conn interface {
	EmissionRows(ctx context.Context, start, end time.Time) ([]domain.EmissionRow, error)
	HumanCounts(ctx context.Context, start, end time.Time) ([]domain.HumanCount, error)
	Release()
}

// Store hands out connections.
type Store interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for degraded and failed builds.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the source of "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDefaultWindow sets the trailing window used when no range is given.
func WithDefaultWindow(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.defaultDays = days
		}
	}
}

// Engine builds dashboard reports from a Store.
type Engine struct {
	store       Store
	logger      zerolog.Logger
	now         func() time.Time
	defaultDays int
}

// NewEngine constructs an Engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		logger:      zerolog.Nop(),
		now:         time.Now,
		defaultDays: DefaultWindowDays,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build produces the report for the optional YYYY-MM-DD bounds. It returns a
// complete report or an error; a missing human_count table degrades to an
// empty head-count series.
func (e *Engine) Build(ctx context.Context, startRaw, endRaw string) (report Report, err error) {
	began := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", domain.ErrComputation, r)
		}
		if err != nil {
			e.logger.Error().Err(err).Str("start_date", startRaw).Str("end_date", endRaw).Msg("dashboard build failed")
		}
		observability.ObserveDashboardBuild(outcome(err), time.Since(began))
	}()

	rng, err := NormalizeRange(startRaw, endRaw, e.now().UTC(), e.defaultDays)
	if err != nil {
		return Report{}, err
	}

	conn, err := e.store.Acquire(ctx)
	if err != nil {
		return Report{}, storageErr(err)
	}
	defer conn.Release()

	rows, err := conn.EmissionRows(ctx, rng.Start, rng.End)
	if err != nil {
		return Report{}, err
	}

	prev := rng.Previous()
	prevRows, err := conn.EmissionRows(ctx, prev.Start, prev.End)
	if err != nil {
		return Report{}, err
	}

	counts, err := conn.HumanCounts(ctx, rng.Start, rng.End)
	if err != nil {
		if !errors.Is(err, domain.ErrSchemaMissing) {
			return Report{}, err
		}
		e.logger.Warn().Err(err).Msg("human_count table missing, continuing without head-counts")
		observability.RecordSchemaMissing()
		counts = nil
	}

	current := Summarize(rows)
	previous := Summarize(prevRows)
	rec := Reconcile(rows, counts)

	for name, v := range map[string]float64{
		"total":             current.Total,
		"previous_total":    previous.Total,
		"energy":            current.EnergySaved,
		"human_responsible": rec.HumanResponsible,
		"average":           rec.Average,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Report{}, fmt.Errorf("%w: %s is not finite", domain.ErrComputation, name)
		}
	}

	return Assemble(rng, current, previous.Total, rec), nil
}

// Rows returns the normalized range and its emission rows without aggregating
// them.
func (e *Engine) Rows(ctx context.Context, startRaw, endRaw string) (DateRange, []domain.EmissionRow, error) {
	rng, err := NormalizeRange(startRaw, endRaw, e.now().UTC(), e.defaultDays)
	if err != nil {
		return DateRange{}, nil, err
	}

	conn, err := e.store.Acquire(ctx)
	if err != nil {
		return DateRange{}, nil, storageErr(err)
	}
	defer conn.Release()

	rows, err := conn.EmissionRows(ctx, rng.Start, rng.End)
	if err != nil {
		return DateRange{}, nil, err
	}
	return rng, rows, nil
}

func storageErr(err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, domain.ErrInvalidDateFormat):
		return observability.OutcomeInvalidDate
	case errors.Is(err, domain.ErrStorageUnavailable):
		return observability.OutcomeStorageUnavailable
	default:
		return observability.OutcomeError
	}
}
